package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// StockState classifies the result of one availability check.
type StockState int

const (
	StockUnknown StockState = iota
	StockInStock
	StockOutOfStock
	StockCheckFailed
)

func (s StockState) String() string {
	switch s {
	case StockInStock:
		return "in stock"
	case StockOutOfStock:
		return "out of stock"
	case StockCheckFailed:
		return "check failed"
	default:
		return "unknown"
	}
}

// StockCheck is the outcome of a single poll of the product page.
type StockCheck struct {
	State      StockState
	Indicator  string
	Title      string
	StatusCode int
	URL        string
	CheckedAt  time.Time
	Err        error
}

// Fetcher retrieves a product page body for classification.
type Fetcher interface {
	Get(ctx context.Context, url string) (int, string, error)
}

type restyFetcher struct {
	client *resty.Client
}

func newRestyFetcher() *restyFetcher {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetHeaders(map[string]string{
			"User-Agent":      driverUserAgent,
			"Accept":          "application/json, text/plain, */*",
			"Accept-Language": "en-US,en;q=0.9",
		})
	return &restyFetcher{client: client}
}

func (f *restyFetcher) Get(ctx context.Context, url string) (int, string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode(), string(resp.Body()), nil
}

var titleRe = regexp.MustCompile(`(?is)<title>(.*?)</title>`)

// Poller checks product availability over plain HTTP, without paying the
// cost of a browser page load per check.
type Poller struct {
	fetch      Fetcher
	indicators []string
	log        *zap.Logger
}

func NewPoller(cfg *Config, log *zap.Logger) *Poller {
	return &Poller{
		fetch:      newRestyFetcher(),
		indicators: cfg.OutOfStockPhrases,
		log:        log.Named("monitor"),
	}
}

// CheckOnce fetches the product page and classifies it. A page that
// carries none of the out-of-stock phrases counts as in stock.
func (p *Poller) CheckOnce(ctx context.Context, url string) StockCheck {
	check := StockCheck{State: StockCheckFailed, URL: url, CheckedAt: time.Now()}

	status, body, err := p.fetch.Get(ctx, url)
	if err != nil {
		check.Err = err
		p.log.Warn("stock check failed", zap.String("url", url), zap.Error(err))
		return check
	}
	check.StatusCode = status
	if status >= 400 {
		check.Err = fmt.Errorf("HTTP %d from product page", status)
		p.log.Warn("stock check failed", zap.String("url", url), zap.Int("status", status))
		return check
	}

	lower := strings.ToLower(body)
	check.State = StockInStock
	for _, phrase := range p.indicators {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			check.State = StockOutOfStock
			check.Indicator = phrase
			break
		}
	}

	if m := titleRe.FindStringSubmatch(body); m != nil {
		check.Title = strings.TrimSpace(m[1])
	}

	p.log.Info("stock check",
		zap.String("state", check.State.String()),
		zap.String("indicator", check.Indicator),
		zap.String("title", check.Title))
	return check
}

// Monitor polls until the product comes in stock, the check budget runs
// out, or the context ends. It returns the moment a check reports in
// stock; transient failures just consume budget.
func (p *Poller) Monitor(ctx context.Context, url string, interval time.Duration, maxChecks int) StockCheck {
	last := StockCheck{State: StockUnknown, URL: url}

	for i := 0; i < maxChecks; i++ {
		check := p.CheckOnce(ctx, url)
		if check.State != last.State {
			p.log.Info("stock state changed",
				zap.String("from", last.State.String()),
				zap.String("to", check.State.String()),
				zap.Int("check", i+1))
		}
		last = check

		if check.State == StockInStock {
			return check
		}
		if i < maxChecks-1 {
			if err := sleep(ctx, interval); err != nil {
				p.log.Info("monitoring interrupted", zap.Error(err))
				return last
			}
		}
	}
	return last
}
