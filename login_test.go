package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLoginFlow(t *testing.T, cfg *Config) *LoginFlow {
	t.Helper()
	flow := NewLoginFlow(cfg, NewSessionStore(cfg, zap.NewNop()), zap.NewNop())
	flow.pollInterval = time.Millisecond
	flow.credentialedWindow = 50 * time.Millisecond
	flow.interactiveWindow = 50 * time.Millisecond
	return flow
}

func TestLoginRedirected(t *testing.T) {
	flow := newTestLoginFlow(t, testConfig(t))

	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.popmart.com/us/account", true},
		{"https://www.popmart.com/us/account/orders", true},
		{"https://popmart.com/ca/account", true},
		{"https://www.popmart.com/us/account-login", false},
		{"https://www.popmart.com/us/user/login?redirect=%2Faccount", false},
		{"https://www.popmart.com/us/MyAccount", true},
		{"https://www.popmart.com/us/products/1372/figure", false},
		{"about:blank", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, flow.loginRedirected(tt.url))
		})
	}
}

func TestAccountURLPatternCustomOrigin(t *testing.T) {
	re := accountURLPattern("https://shop.example.com", []string{"us"})
	assert.True(t, re.MatchString("https://shop.example.com/us/account"))
	assert.True(t, re.MatchString("https://www.shop.example.com/us/account"))
	assert.False(t, re.MatchString("https://shop.example.com/de/account"))
}

func TestCredentialedLoginExportsSession(t *testing.T) {
	cfg := testConfig(t)
	cfg.Username = "buyer@example.com"
	cfg.Password = "hunter2"
	flow := newTestLoginFlow(t, cfg)

	drv := newFakeDriver()
	drv.currentURLFn = func() (string, error) {
		return "https://www.popmart.com/us/account", nil
	}

	result, err := flow.Run(context.Background(), drv)
	require.NoError(t, err)

	assert.Equal(t, LoginCredentialed, result.Method)
	assert.Equal(t, "buyer@example.com", drv.inputs[cfg.Selectors.LoginField])
	assert.Equal(t, "hunter2", drv.inputs[cfg.Selectors.PasswordField])
	assert.Contains(t, drv.clicked, cfg.Selectors.LoginButton)

	// The snapshot has to be read before the browser is torn down.
	require.True(t, drv.quit)
	quitAt := -1
	cookiesAt := -1
	for i, event := range drv.events {
		switch event {
		case "quit":
			quitAt = i
		case "cookies":
			cookiesAt = i
		}
	}
	assert.Greater(t, quitAt, cookiesAt)

	// The session landed on disk.
	store := NewSessionStore(cfg, zap.NewNop())
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, loaded.Cookies, 1)
}

func TestCredentialedFallsBackToInteractive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Username = "buyer@example.com"
	cfg.Password = "hunter2"
	flow := newTestLoginFlow(t, cfg)

	drv := newFakeDriver()
	// Stuck on the login page for the first strategy, redirected once
	// the second navigation (the interactive attempt) has happened.
	drv.currentURLFn = func() (string, error) {
		if len(drv.navigated) < 2 {
			return cfg.LoginURL, nil
		}
		return "https://www.popmart.com/us/account", nil
	}

	result, err := flow.Run(context.Background(), drv)
	require.NoError(t, err)
	assert.Equal(t, LoginInteractive, result.Method)
	assert.Len(t, drv.navigated, 2)
}

func TestInteractiveLoginTimeout(t *testing.T) {
	cfg := testConfig(t)
	flow := newTestLoginFlow(t, cfg)

	drv := newFakeDriver()
	drv.currentURLFn = func() (string, error) {
		return cfg.LoginURL, nil
	}

	_, err := flow.Run(context.Background(), drv)
	require.Error(t, err)

	var timeoutErr *LoginTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, flow.interactiveWindow, timeoutErr.Timeout)

	// No session export on failure, and the flow does not quit the
	// browser it was handed.
	assert.False(t, drv.quit)
	store := NewSessionStore(cfg, zap.NewNop())
	_, loadErr := store.Load()
	assert.ErrorIs(t, loadErr, ErrSessionNotFound)
}

func TestLoginSkipsCredentialedWithoutCredentials(t *testing.T) {
	cfg := testConfig(t)
	flow := newTestLoginFlow(t, cfg)

	drv := newFakeDriver()
	drv.currentURLFn = func() (string, error) {
		return "https://www.popmart.com/ca/account", nil
	}

	result, err := flow.Run(context.Background(), drv)
	require.NoError(t, err)
	assert.Equal(t, LoginInteractive, result.Method)
	assert.Empty(t, drv.inputs)
}
