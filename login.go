package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LoginMethod names which strategy produced an authenticated session.
type LoginMethod string

const (
	LoginCredentialed LoginMethod = "credentialed"
	LoginInteractive  LoginMethod = "interactive"
)

// LoginResult carries the captured session and how it was obtained.
type LoginResult struct {
	Snapshot    *SessionSnapshot
	Method      LoginMethod
	SucceededAt time.Time
}

// LoginFlow drives the storefront login page and exports the resulting
// session. Credentialed login runs first when a username and password are
// configured; interactive login is the fallback where the operator signs
// in by hand in the opened browser window.
type LoginFlow struct {
	cfg                *Config
	store              *SessionStore
	log                *zap.Logger
	accountURL         *regexp.Regexp
	pollInterval       time.Duration
	credentialedWindow time.Duration
	interactiveWindow  time.Duration
}

func NewLoginFlow(cfg *Config, store *SessionStore, log *zap.Logger) *LoginFlow {
	return &LoginFlow{
		cfg:                cfg,
		store:              store,
		log:                log.Named("login"),
		accountURL:         accountURLPattern(cfg.BaseURL, cfg.Regions),
		pollInterval:       time.Second,
		credentialedWindow: time.Duration(cfg.LoginTimeoutSeconds) * time.Second,
		interactiveWindow:  time.Duration(cfg.InteractiveTimeoutSeconds) * time.Second,
	}
}

// accountURLPattern compiles the strict post-login URL matcher for the
// configured origin. The www prefix is optional so redirects to either
// host form are accepted.
func accountURLPattern(origin string, regions []string) *regexp.Regexp {
	host := "www.popmart.com"
	if parsed, err := url.Parse(origin); err == nil && parsed.Hostname() != "" {
		host = parsed.Hostname()
	}
	host = strings.TrimPrefix(host, "www.")

	quoted := make([]string, len(regions))
	for i, region := range regions {
		quoted[i] = regexp.QuoteMeta(region)
	}
	pattern := `^https://(www\.)?` + regexp.QuoteMeta(host) +
		`/(` + strings.Join(quoted, "|") + `)/account(/.*)?$`
	return regexp.MustCompile(pattern)
}

// loginRedirected reports whether the browser has left the login page for
// an account page. The strict account URL match is preferred; the loose
// fallback catches redirect targets the storefront occasionally varies,
// as long as they are clearly past the login form.
func (f *LoginFlow) loginRedirected(current string) bool {
	if f.accountURL.MatchString(current) {
		return true
	}
	lower := strings.ToLower(current)
	return strings.Contains(lower, "account") && !strings.Contains(lower, "login")
}

// Run tries each applicable login strategy in order and exports the
// session of the first one that reaches an account page.
func (f *LoginFlow) Run(ctx context.Context, drv Driver) (*LoginResult, error) {
	type strategy struct {
		method LoginMethod
		window time.Duration
		setup  func(context.Context, Driver) error
	}

	var strategies []strategy
	if f.cfg.HasCredentials() {
		strategies = append(strategies, strategy{LoginCredentialed, f.credentialedWindow, f.submitCredentials})
	} else {
		f.log.Info("no credentials configured, skipping credentialed login")
	}
	strategies = append(strategies, strategy{LoginInteractive, f.interactiveWindow, f.openForManualLogin})

	var lastErr error
	for _, s := range strategies {
		f.log.Info("attempting login", zap.String("method", string(s.method)))
		if err := s.setup(ctx, drv); err != nil {
			f.log.Warn("login setup failed", zap.String("method", string(s.method)), zap.Error(err))
			lastErr = err
			continue
		}
		if err := f.awaitRedirect(ctx, drv, s.window); err != nil {
			f.log.Warn("login did not complete", zap.String("method", string(s.method)), zap.Error(err))
			lastErr = err
			continue
		}
		return f.export(drv, s.method)
	}
	return nil, fmt.Errorf("all login strategies failed: %w", lastErr)
}

func (f *LoginFlow) submitCredentials(ctx context.Context, drv Driver) error {
	if err := drv.Navigate(f.cfg.LoginURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	f.dismissConsent(drv)

	timeout := f.cfg.Timeout()
	if err := drv.Input(f.cfg.Selectors.LoginField, f.cfg.Username, timeout); err != nil {
		return fmt.Errorf("failed to fill username: %w", err)
	}
	if err := drv.Input(f.cfg.Selectors.PasswordField, f.cfg.Password, timeout); err != nil {
		return fmt.Errorf("failed to fill password: %w", err)
	}

	ref, err := drv.WaitClickable(f.cfg.Selectors.LoginButton, timeout)
	if err != nil {
		return fmt.Errorf("login button not found: %w", err)
	}
	if err := drv.Click(ref); err != nil {
		return fmt.Errorf("failed to click login button: %w", err)
	}

	f.log.Info("credentials submitted")
	return nil
}

func (f *LoginFlow) openForManualLogin(ctx context.Context, drv Driver) error {
	if err := drv.Navigate(f.cfg.LoginURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	f.dismissConsent(drv)

	f.log.Info("waiting for manual login",
		zap.Duration("window", f.interactiveWindow))
	fmt.Println("👤 Please log in manually in the browser window...")
	return nil
}

func (f *LoginFlow) dismissConsent(drv Driver) {
	ref, err := drv.WaitClickable(f.cfg.Selectors.Agreement, f.cfg.Timeout())
	if err != nil {
		return
	}
	if err := drv.Click(ref); err != nil {
		f.log.Debug("consent dismiss failed", zap.Error(err))
	}
}

func (f *LoginFlow) awaitRedirect(ctx context.Context, drv Driver, window time.Duration) error {
	err := pollUntil(ctx, f.pollInterval, window, func() bool {
		current, err := drv.CurrentURL()
		if err != nil {
			f.log.Debug("could not read current url", zap.Error(err))
			return false
		}
		return f.loginRedirected(current)
	})
	if errors.Is(err, errWaitTimeout) {
		return &LoginTimeoutError{Timeout: window}
	}
	return err
}

// export snapshots the authenticated session and persists it. The
// snapshot has to be read out before the browser goes away, so Quit only
// happens after a successful save.
func (f *LoginFlow) export(drv Driver, method LoginMethod) (*LoginResult, error) {
	if current, err := drv.CurrentURL(); err == nil {
		f.log.Info("login detected", zap.String("url", current), zap.String("method", string(method)))
	}

	snap, err := f.store.CaptureSnapshot(drv)
	if err != nil {
		return nil, fmt.Errorf("failed to capture session: %w", err)
	}
	if err := f.store.Save(snap); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	drv.Quit()

	return &LoginResult{
		Snapshot:    snap,
		Method:      method,
		SucceededAt: time.Now(),
	}, nil
}
