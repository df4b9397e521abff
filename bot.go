package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PurchaseOutcome summarizes one end-to-end purchase attempt.
type PurchaseOutcome struct {
	Success       bool
	PaymentURL    string
	Elapsed       time.Duration
	FailureReason string
	Steps         []CheckoutStepResult
	LastStock     *StockCheck
}

// Bot ties the session store, poller, login and checkout flows together
// behind the operations the CLI exposes.
type Bot struct {
	cfg       *Config
	log       *zap.Logger
	store     *SessionStore
	poller    *Poller
	login     *LoginFlow
	checkout  *CheckoutFlow
	driver    Driver
	newDriver func() (Driver, error)
}

func NewBot(cfg *Config, log *zap.Logger) *Bot {
	store := NewSessionStore(cfg, log)
	return &Bot{
		cfg:      cfg,
		log:      log,
		store:    store,
		poller:   NewPoller(cfg, log),
		login:    NewLoginFlow(cfg, store, log),
		checkout: NewCheckoutFlow(cfg, log),
		newDriver: func() (Driver, error) {
			return newRodDriver(cfg, log)
		},
	}
}

func (b *Bot) startSession() (Driver, error) {
	if b.driver != nil {
		return b.driver, nil
	}
	drv, err := b.newDriver()
	if err != nil {
		return nil, fmt.Errorf("failed to start browser (is Chrome installed and reachable?): %w", err)
	}
	b.driver = drv
	return drv, nil
}

func (b *Bot) Close() {
	if b.driver != nil {
		b.driver.Quit()
		b.driver = nil
	}
}

// LoginAndExport opens a browser, runs the login strategy chain and
// saves the resulting session to disk. The login flow owns quitting the
// browser on success.
func (b *Bot) LoginAndExport(ctx context.Context) (*LoginResult, error) {
	drv, err := b.startSession()
	if err != nil {
		return nil, err
	}

	result, err := b.login.Run(ctx, drv)
	b.driver = nil
	if err != nil {
		drv.Quit()
		return nil, err
	}
	return result, nil
}

// Purchase runs a checkout with a previously exported session.
func (b *Bot) Purchase(ctx context.Context) PurchaseOutcome {
	started := time.Now()
	snap, err := b.store.Load()
	if err != nil {
		return b.failed(started, nil, b.remediate(err))
	}
	return b.purchaseWith(ctx, started, snap, nil)
}

// LoginThenPurchase logs in fresh and immediately attempts checkout with
// the new session.
func (b *Bot) LoginThenPurchase(ctx context.Context) PurchaseOutcome {
	started := time.Now()
	result, err := b.LoginAndExport(ctx)
	if err != nil {
		return b.failed(started, nil, fmt.Sprintf("login failed: %v", err))
	}
	return b.purchaseWith(ctx, started, result.Snapshot, nil)
}

// CheckAvailability runs a single stock check against the target product.
func (b *Bot) CheckAvailability(ctx context.Context) StockCheck {
	return b.poller.CheckOnce(ctx, b.cfg.TargetProduct)
}

// MonitorUntilAvailable polls the target product until it comes in stock
// or the budget runs out.
func (b *Bot) MonitorUntilAvailable(ctx context.Context, interval time.Duration, maxChecks int) StockCheck {
	return b.poller.Monitor(ctx, b.cfg.TargetProduct, interval, maxChecks)
}

// MonitorAndPurchase is the snipe operation: wait for a restock, then
// buy. A missing session triggers a login first, so the browser time
// happens before the checkout needs to be fast.
func (b *Bot) MonitorAndPurchase(ctx context.Context, interval time.Duration, maxChecks int) PurchaseOutcome {
	started := time.Now()

	stock := b.poller.Monitor(ctx, b.cfg.TargetProduct, interval, maxChecks)
	if stock.State != StockInStock {
		return b.failed(started, &stock,
			fmt.Sprintf("product did not come in stock (last state: %s)", stock.State))
	}

	snap, err := b.store.Load()
	if errors.Is(err, ErrSessionNotFound) {
		b.log.Info("no saved session, logging in first")
		result, loginErr := b.LoginAndExport(ctx)
		if loginErr != nil {
			return b.failed(started, &stock, fmt.Sprintf("login failed: %v", loginErr))
		}
		snap = result.Snapshot
	} else if err != nil {
		return b.failed(started, &stock, b.remediate(err))
	}

	return b.purchaseWith(ctx, started, snap, &stock)
}

func (b *Bot) purchaseWith(ctx context.Context, started time.Time, snap *SessionSnapshot, stock *StockCheck) PurchaseOutcome {
	drv, err := b.startSession()
	if err != nil {
		return b.failed(started, stock, b.remediate(err))
	}

	if err := b.store.Apply(snap, drv); err != nil {
		return b.failed(started, stock, fmt.Sprintf("session restore failed: %v", err))
	}

	paymentURL, steps, err := b.checkout.Run(ctx, drv)
	outcome := PurchaseOutcome{
		Success:    err == nil,
		PaymentURL: paymentURL,
		Elapsed:    time.Since(started),
		Steps:      steps,
		LastStock:  stock,
	}
	if err != nil {
		outcome.FailureReason = err.Error()
		b.log.Error("checkout failed", zap.Error(err), zap.Duration("elapsed", outcome.Elapsed))
	} else {
		b.log.Info("checkout reached payment",
			zap.String("url", paymentURL),
			zap.Duration("elapsed", outcome.Elapsed))
	}
	return outcome
}

func (b *Bot) failed(started time.Time, stock *StockCheck, reason string) PurchaseOutcome {
	b.log.Error("purchase failed", zap.String("reason", reason))
	return PurchaseOutcome{
		Elapsed:       time.Since(started),
		FailureReason: reason,
		LastStock:     stock,
	}
}

func (b *Bot) remediate(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "session data not found: run `popbot login` first"
	case errors.Is(err, ErrDriverUnavailable):
		return fmt.Sprintf("%v (is Chrome installed and reachable?)", err)
	default:
		return err.Error()
	}
}
