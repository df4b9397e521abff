package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StepOutcome records how a checkout step ended.
type StepOutcome string

const (
	StepSuccess         StepOutcome = "success"
	StepSkippedNotFound StepOutcome = "skipped_not_found"
	StepFailedExhausted StepOutcome = "failed_exhausted"
)

// CheckoutStepResult is one row of the checkout trace.
type CheckoutStepResult struct {
	Step    string
	Outcome StepOutcome
	Elapsed time.Duration
}

// CheckoutFlow walks the storefront from the product page to the payment
// page. Buy Now and the cart steps are hard requirements; the go-to-cart
// popup and the payment-method clicks are best effort because the
// storefront does not always render them.
type CheckoutFlow struct {
	cfg             *Config
	log             *zap.Logger
	buyNowAttempts  int
	retryInterval   time.Duration
	reloadSettle    time.Duration
	paymentSettle   time.Duration
	urlPollInterval time.Duration
	actionTimeout   time.Duration
}

func NewCheckoutFlow(cfg *Config, log *zap.Logger) *CheckoutFlow {
	return &CheckoutFlow{
		cfg:             cfg,
		log:             log.Named("checkout"),
		buyNowAttempts:  10,
		retryInterval:   time.Second,
		reloadSettle:    2 * time.Second,
		paymentSettle:   5 * time.Second,
		urlPollInterval: 500 * time.Millisecond,
		actionTimeout:   cfg.Timeout(),
	}
}

// Run executes the checkout sequence and returns the payment page URL on
// success, plus a trace of every step for reporting.
func (c *CheckoutFlow) Run(ctx context.Context, drv Driver) (string, []CheckoutStepResult, error) {
	var trace []CheckoutStepResult
	record := func(step string, outcome StepOutcome, started time.Time) {
		trace = append(trace, CheckoutStepResult{
			Step:    step,
			Outcome: outcome,
			Elapsed: time.Since(started),
		})
	}

	started := time.Now()
	if err := drv.Navigate(c.cfg.TargetProduct); err != nil {
		record("navigate", StepFailedExhausted, started)
		return "", trace, fmt.Errorf("failed to open product page: %w", err)
	}
	// The injected cookies and storage do not refresh the already
	// rendered page, so reload once to pick the session up.
	if err := drv.Reload(); err != nil {
		record("navigate", StepFailedExhausted, started)
		return "", trace, fmt.Errorf("failed to reload product page: %w", err)
	}
	if err := sleep(ctx, c.reloadSettle); err != nil {
		record("navigate", StepFailedExhausted, started)
		return "", trace, err
	}
	record("navigate", StepSuccess, started)

	started = time.Now()
	if err := c.clickBuyNow(ctx, drv); err != nil {
		record("buy_now", StepFailedExhausted, started)
		return "", trace, err
	}
	record("buy_now", StepSuccess, started)

	started = time.Now()
	if c.clickGoToCart(drv) {
		record("go_to_cart", StepSuccess, started)
	} else {
		record("go_to_cart", StepSkippedNotFound, started)
	}

	started = time.Now()
	if err := c.completeCart(ctx, drv); err != nil {
		record("cart_checkout", StepFailedExhausted, started)
		return "", trace, err
	}
	record("cart_checkout", StepSuccess, started)

	started = time.Now()
	paymentURL, err := c.reachPayment(ctx, drv)
	if err != nil {
		record("payment", StepFailedExhausted, started)
		return "", trace, err
	}
	record("payment", StepSuccess, started)

	return paymentURL, trace, nil
}

// clickBuyNow retries the buy button once a second. Right after a restock
// the button often takes a few renders to become clickable; a click error
// on a found button is a real failure and propagates.
func (c *CheckoutFlow) clickBuyNow(ctx context.Context, drv Driver) error {
	selector := c.cfg.Selectors.BuyNow
	for attempt := 1; attempt <= c.buyNowAttempts; attempt++ {
		ref, err := drv.WaitClickable(selector, c.actionTimeout)
		if err == nil {
			if err := drv.Click(ref); err != nil {
				return fmt.Errorf("failed to click buy now: %w", err)
			}
			c.log.Info("buy now clicked", zap.Int("attempt", attempt))
			return nil
		}
		c.log.Warn("buy now not clickable",
			zap.Int("attempt", attempt),
			zap.Int("max", c.buyNowAttempts))
		if attempt < c.buyNowAttempts {
			if err := sleep(ctx, c.retryInterval); err != nil {
				return err
			}
		}
	}
	return &ElementNotFoundError{Step: "BuyNow", Selector: selector, Attempts: c.buyNowAttempts}
}

// clickGoToCart handles the mini-cart popup. The popup is sometimes
// rendered off screen, so its style gets forced visible before the
// scripted click. Any failure just means the flow continues from the
// cart page directly.
func (c *CheckoutFlow) clickGoToCart(drv Driver) bool {
	selector := c.cfg.Selectors.GoToCart
	if err := drv.SetElementStyle(selector, map[string]string{
		"position": "fixed",
		"zIndex":   "9999",
		"opacity":  "1",
		"display":  "block",
	}); err != nil {
		c.log.Debug("could not force popup visible", zap.Error(err))
	}

	ref, err := drv.WaitClickable(selector, c.actionTimeout)
	if err != nil {
		c.log.Warn("go-to-cart popup not found, continuing", zap.Error(err))
		return false
	}
	if err := drv.ClickViaScript(ref); err != nil {
		c.log.Warn("go-to-cart click failed, continuing", zap.Error(err))
		return false
	}
	c.log.Info("go-to-cart clicked")
	return true
}

func (c *CheckoutFlow) completeCart(ctx context.Context, drv Driver) error {
	if err := c.waitURLContains(ctx, drv, "cart", "checkout"); err != nil {
		return fmt.Errorf("never reached cart page: %w", err)
	}

	ref, err := drv.WaitClickable(c.cfg.Selectors.Checkbox, c.actionTimeout)
	if err != nil {
		return fmt.Errorf("item checkbox not found: %w", err)
	}
	if err := drv.Click(ref); err != nil {
		return fmt.Errorf("failed to select item: %w", err)
	}

	ref, err = drv.WaitClickable(c.cfg.Selectors.Checkout, c.actionTimeout)
	if err != nil {
		return fmt.Errorf("checkout button not found: %w", err)
	}
	if err := drv.Click(ref); err != nil {
		return fmt.Errorf("failed to click checkout: %w", err)
	}

	if err := c.waitURLContains(ctx, drv, "checkout", "payment"); err != nil {
		return fmt.Errorf("never reached checkout page: %w", err)
	}
	return sleep(ctx, c.paymentSettle)
}

// reachPayment nudges the payment page toward a fully formed payment URL.
// The pay and ordering clicks are best effort; hovering the third-party
// button makes its widget finish rendering without submitting anything.
// Success is the URL growing past the configured length, which only
// happens once the payment token is appended.
func (c *CheckoutFlow) reachPayment(ctx context.Context, drv Driver) (string, error) {
	if ref, err := drv.WaitClickable(c.cfg.Selectors.Pay, c.actionTimeout); err == nil {
		if err := drv.ClickViaScript(ref); err != nil {
			c.log.Warn("pay click failed, continuing", zap.Error(err))
		}
	} else {
		c.log.Warn("pay button not found, continuing", zap.Error(err))
	}

	if ref, err := drv.WaitClickable(c.cfg.Selectors.Ordering, c.actionTimeout); err == nil {
		if err := drv.Hover(ref); err != nil {
			c.log.Warn("ordering hover failed, continuing", zap.Error(err))
		}
	} else {
		c.log.Warn("ordering button not found, continuing", zap.Error(err))
	}

	var final string
	err := pollUntil(ctx, c.urlPollInterval, c.actionTimeout, func() bool {
		current, err := drv.CurrentURL()
		if err != nil {
			return false
		}
		if len(current) > c.cfg.PaymentURLMinLength {
			final = current
			return true
		}
		return false
	})
	if err != nil {
		return "", fmt.Errorf("payment page never materialized: %w", err)
	}
	c.log.Info("payment page reached", zap.String("url", final))
	return final, nil
}

func (c *CheckoutFlow) waitURLContains(ctx context.Context, drv Driver, substrings ...string) error {
	return pollUntil(ctx, c.urlPollInterval, c.actionTimeout, func() bool {
		current, err := drv.CurrentURL()
		if err != nil {
			return false
		}
		lower := strings.ToLower(current)
		for _, sub := range substrings {
			if strings.Contains(lower, sub) {
				return true
			}
		}
		return false
	})
}
