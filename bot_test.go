package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type botHarness struct {
	bot     *Bot
	store   *SessionStore
	fetch   *fakeFetcher
	drivers []*fakeDriver
	urlFn   func() (string, error)
}

func newBotHarness(t *testing.T, cfg *Config, responses []fakeResponse) *botHarness {
	t.Helper()
	log := zap.NewNop()
	store := NewSessionStore(cfg, log)

	h := &botHarness{
		store: store,
		fetch: &fakeFetcher{responses: responses},
	}

	login := NewLoginFlow(cfg, store, log)
	login.pollInterval = time.Millisecond
	login.credentialedWindow = 30 * time.Millisecond
	login.interactiveWindow = 30 * time.Millisecond

	checkout := NewCheckoutFlow(cfg, log)
	checkout.retryInterval = time.Millisecond
	checkout.reloadSettle = 0
	checkout.paymentSettle = 0
	checkout.urlPollInterval = time.Millisecond
	checkout.actionTimeout = 20 * time.Millisecond

	h.bot = &Bot{
		cfg:      cfg,
		log:      log,
		store:    store,
		poller:   &Poller{fetch: h.fetch, indicators: cfg.OutOfStockPhrases, log: log},
		login:    login,
		checkout: checkout,
		newDriver: func() (Driver, error) {
			drv := newFakeDriver()
			drv.currentURLFn = h.urlFn
			h.drivers = append(h.drivers, drv)
			return drv, nil
		},
	}
	return h
}

func (h *botHarness) saveSession(t *testing.T) {
	t.Helper()
	require.NoError(t, h.store.Save(&SessionSnapshot{
		Cookies:      []Cookie{{Name: "session", Value: "abc123"}},
		LocalStorage: map[string]json.RawMessage{"token": json.RawMessage(`"xyz"`)},
		CapturedAt:   time.Now(),
	}))
}

func TestMonitorAndPurchaseSuccess(t *testing.T) {
	cfg := testConfig(t)
	h := newBotHarness(t, cfg, []fakeResponse{
		{status: 200, body: "sold out"},
		{status: 200, body: "<button>buy now</button>"},
	})
	h.saveSession(t)
	h.urlFn = func() (string, error) { return paymentPageURL, nil }

	outcome := h.bot.MonitorAndPurchase(context.Background(), time.Millisecond, 10)

	assert.True(t, outcome.Success)
	assert.Equal(t, paymentPageURL, outcome.PaymentURL)
	assert.Empty(t, outcome.FailureReason)
	require.NotNil(t, outcome.LastStock)
	assert.Equal(t, StockInStock, outcome.LastStock.State)
	assert.Equal(t, 2, h.fetch.calls)
	require.Len(t, h.drivers, 1)
	assert.NotEmpty(t, h.drivers[0].addedCookies)
}

func TestMonitorAndPurchaseNeverInStock(t *testing.T) {
	cfg := testConfig(t)
	h := newBotHarness(t, cfg, []fakeResponse{
		{status: 200, body: "sold out"},
	})
	h.saveSession(t)

	outcome := h.bot.MonitorAndPurchase(context.Background(), time.Millisecond, 3)

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.FailureReason, "did not come in stock")
	assert.Contains(t, outcome.FailureReason, "out of stock")
	assert.Empty(t, outcome.Steps)
	assert.Empty(t, h.drivers, "no browser should launch when nothing restocked")
}

func TestMonitorAndPurchaseLogsInWhenNoSession(t *testing.T) {
	cfg := testConfig(t)
	h := newBotHarness(t, cfg, []fakeResponse{
		{status: 200, body: "<button>buy now</button>"},
	})
	// Stuck on the login page, so the forced login times out.
	h.urlFn = func() (string, error) { return cfg.LoginURL, nil }

	outcome := h.bot.MonitorAndPurchase(context.Background(), time.Millisecond, 5)

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.FailureReason, "login failed")
	assert.Empty(t, outcome.Steps)
	require.Len(t, h.drivers, 1)
	assert.True(t, h.drivers[0].quit)
}

func TestPurchaseWithoutSession(t *testing.T) {
	cfg := testConfig(t)
	h := newBotHarness(t, cfg, nil)

	outcome := h.bot.Purchase(context.Background())

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.FailureReason, "run `popbot login` first")
	assert.Empty(t, h.drivers)
}

func TestPurchaseUsesSavedSession(t *testing.T) {
	cfg := testConfig(t)
	h := newBotHarness(t, cfg, nil)
	h.saveSession(t)
	h.urlFn = func() (string, error) { return paymentPageURL, nil }

	outcome := h.bot.Purchase(context.Background())

	require.True(t, outcome.Success, outcome.FailureReason)
	require.Len(t, h.drivers, 1)
	drv := h.drivers[0]
	assert.Equal(t, "abc123", drv.addedCookies[0].Value)
	assert.Equal(t, "xyz", drv.setItems["token"])
	assert.Contains(t, drv.clicked, cfg.Selectors.BuyNow)
}

func TestLoginThenPurchase(t *testing.T) {
	cfg := testConfig(t)
	h := newBotHarness(t, cfg, nil)
	// An account URL that also satisfies the checkout page waits and the
	// payment length gate, so one fake URL drives both phases.
	h.urlFn = func() (string, error) {
		return "https://www.popmart.com/us/account/cart/checkout?payment=paypal&token=abcdef", nil
	}

	outcome := h.bot.LoginThenPurchase(context.Background())

	require.True(t, outcome.Success, outcome.FailureReason)
	require.Len(t, h.drivers, 2, "login and checkout run in separate browsers")
	assert.True(t, h.drivers[0].quit)

	loaded, err := h.store.Load()
	require.NoError(t, err)
	assert.Len(t, loaded.Cookies, 1)
}

func TestCheckAvailability(t *testing.T) {
	cfg := testConfig(t)
	h := newBotHarness(t, cfg, []fakeResponse{
		{status: 200, body: "<title>Figure</title>sold out"},
	})

	check := h.bot.CheckAvailability(context.Background())

	assert.Equal(t, StockOutOfStock, check.State)
	assert.Equal(t, cfg.TargetProduct, check.URL)
	assert.Empty(t, h.drivers, "availability checks stay off the browser")
}

func TestPurchaseBrowserLaunchFailure(t *testing.T) {
	cfg := testConfig(t)
	h := newBotHarness(t, cfg, nil)
	h.saveSession(t)
	h.bot.newDriver = func() (Driver, error) {
		return nil, errors.New("chrome not found in PATH")
	}

	outcome := h.bot.Purchase(context.Background())

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.FailureReason, "failed to start browser")
	assert.Contains(t, outcome.FailureReason, "chrome not found in PATH")
	assert.NotContains(t, outcome.FailureReason, "no browser session active")
}

func TestRemediationHints(t *testing.T) {
	cfg := testConfig(t)
	h := newBotHarness(t, cfg, nil)

	assert.Contains(t, h.bot.remediate(ErrSessionNotFound), "popbot login")
	assert.Contains(t, h.bot.remediate(ErrDriverUnavailable), "Chrome")
}
