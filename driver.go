package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

const driverUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Cookie is one browser cookie as persisted in the session snapshot. The
// JSON field names match the exported record layout.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expiry   float64 `json:"expiry,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
}

// ElementRef is an opaque handle to a page element located by
// WaitClickable.
type ElementRef struct {
	Selector string
	el       *rod.Element
}

// Driver is the browser capability the flows run against. rodDriver below
// is the only production implementation; tests substitute fakes.
type Driver interface {
	Navigate(url string) error
	Reload() error
	CurrentURL() (string, error)
	WaitClickable(selector string, timeout time.Duration) (ElementRef, error)
	Click(ref ElementRef) error
	ClickViaScript(ref ElementRef) error
	SetElementStyle(selector string, props map[string]string) error
	Hover(ref ElementRef) error
	Input(selector, text string, timeout time.Duration) error
	Cookies() ([]Cookie, error)
	AddCookie(c Cookie) error
	LocalStorage() (map[string]string, error)
	SetLocalStorageItem(key, value string) error
	Quit()
}

type rodDriver struct {
	cfg      *Config
	log      *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// newRodDriver launches a browser and opens a stealth page in it. The
// returned driver owns the whole browser process; Quit tears it down.
func newRodDriver(cfg *Config, log *zap.Logger) (*rodDriver, error) {
	d := &rodDriver{cfg: cfg, log: log.Named("driver")}

	// Leakless mode deadlocks on Windows, see go-rod/rod#853.
	useLeakless := runtime.GOOS != "windows"

	d.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(cfg.Headless)

	if cfg.BrowserProfilePath != "" {
		d.launcher = d.launcher.UserDataDir(cfg.BrowserProfilePath)
	}

	if chromePath, ok := launcher.LookPath(); ok {
		d.launcher = d.launcher.Bin(chromePath)
		d.log.Debug("using system chrome", zap.String("path", chromePath))
	} else {
		d.log.Debug("system chrome not found, falling back to managed chromium")
	}

	controlURL, err := d.launcher.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	d.browser = rod.New().ControlURL(controlURL)
	if err := d.browser.Connect(); err != nil {
		d.launcher.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := stealth.Page(d.browser)
	if err != nil {
		d.Quit()
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}
	d.page = page

	if err := d.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: driverUserAgent}); err != nil {
		d.log.Warn("failed to set user agent", zap.Error(err))
	}

	d.log.Info("browser launched", zap.Bool("headless", cfg.Headless))
	return d, nil
}

func (d *rodDriver) Navigate(url string) error {
	if err := d.page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return d.page.WaitLoad()
}

func (d *rodDriver) Reload() error {
	if err := d.page.Reload(); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	return d.page.WaitLoad()
}

func (d *rodDriver) CurrentURL() (string, error) {
	res, err := d.page.Eval(`() => window.location.href`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (d *rodDriver) WaitClickable(selector string, timeout time.Duration) (ElementRef, error) {
	page := d.page.Timeout(timeout)
	el, err := page.Element(selector)
	if err != nil {
		return ElementRef{}, fmt.Errorf("element %s not found within %s: %w", selector, timeout, err)
	}
	if err := el.WaitVisible(); err != nil {
		return ElementRef{}, fmt.Errorf("element %s not clickable within %s: %w", selector, timeout, err)
	}
	return ElementRef{Selector: selector, el: el}, nil
}

func (d *rodDriver) Click(ref ElementRef) error {
	if ref.el == nil {
		return fmt.Errorf("stale element ref %q", ref.Selector)
	}
	return ref.el.Click(proto.InputMouseButtonLeft, 1)
}

// ClickViaScript invokes the element's DOM click handler directly, which
// bypasses overlay interception on simulated pointer events.
func (d *rodDriver) ClickViaScript(ref ElementRef) error {
	if ref.el == nil {
		return fmt.Errorf("stale element ref %q", ref.Selector)
	}
	_, err := ref.el.Eval(`() => this.click()`)
	return err
}

func (d *rodDriver) SetElementStyle(selector string, props map[string]string) error {
	_, err := d.page.Eval(`(sel, props) => {
		const el = document.querySelector(sel);
		if (!el) return false;
		for (const [key, value] of Object.entries(props)) {
			el.style[key] = value;
		}
		return true;
	}`, selector, props)
	return err
}

func (d *rodDriver) Hover(ref ElementRef) error {
	if ref.el == nil {
		return fmt.Errorf("stale element ref %q", ref.Selector)
	}
	return ref.el.Hover()
}

func (d *rodDriver) Input(selector, text string, timeout time.Duration) error {
	el, err := d.page.Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("input %s not found within %s: %w", selector, timeout, err)
	}
	if err := el.SelectAllText(); err != nil {
		d.log.Debug("could not clear input", zap.String("selector", selector), zap.Error(err))
	}
	return el.Input(text)
}

func (d *rodDriver) Cookies() ([]Cookie, error) {
	raw, err := d.page.Cookies([]string{d.cfg.BaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to get cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			cookie.Expiry = float64(c.Expires)
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

func (d *rodDriver) AddCookie(c Cookie) error {
	param := &proto.NetworkCookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	if c.Expiry > 0 {
		param.Expires = proto.TimeSinceEpoch(c.Expiry)
	}
	return d.page.SetCookies([]*proto.NetworkCookieParam{param})
}

func (d *rodDriver) LocalStorage() (map[string]string, error) {
	res, err := d.page.Eval(`() => {
		const out = {};
		for (let i = 0; i < localStorage.length; i++) {
			const key = localStorage.key(i);
			out[key] = localStorage.getItem(key);
		}
		return out;
	}`)
	if err != nil {
		return nil, fmt.Errorf("failed to read local storage: %w", err)
	}

	storage := map[string]string{}
	for key, value := range res.Value.Map() {
		storage[key] = value.Str()
	}
	return storage, nil
}

func (d *rodDriver) SetLocalStorageItem(key, value string) error {
	_, err := d.page.Eval(`(key, value) => localStorage.setItem(key, value)`, key, value)
	return err
}

func (d *rodDriver) Quit() {
	if d.page != nil {
		d.page.Close()
		d.page = nil
	}
	if d.browser != nil {
		d.browser.Close()
		d.browser = nil
	}
	if d.launcher != nil {
		d.launcher.Cleanup()
	}
	d.log.Info("browser closed")
}
