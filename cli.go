package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile      string
	flagURL      string
	flagHeadless bool
	flagInterval int
	flagMax      int

	cfg    *Config
	logger *zap.Logger
	bot    *Bot
)

var rootCmd = &cobra.Command{
	Use:   "popbot",
	Short: "PopMart restock monitor and checkout assistant",
	Long: `popbot watches a PopMart product page for restocks and drives the
storefront checkout up to the payment page. Payment itself is always
completed by hand.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if flagURL != "" {
			cfg.TargetProduct = flagURL
		}
		if cmd.Flags().Changed("headless") {
			cfg.Headless = flagHeadless
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger = newLogger(cfg)
		bot = NewBot(cfg, logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if bot != nil {
			bot.Close()
		}
		if logger != nil {
			logger.Sync()
		}
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to PopMart and save the session for later checkouts",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := bot.LoginAndExport(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("✓ Logged in (%s), session saved: %d cookies, %d storage keys\n",
			result.Method, len(result.Snapshot.Cookies), len(result.Snapshot.LocalStorage))
		return nil
	},
}

var purchaseCmd = &cobra.Command{
	Use:   "purchase",
	Short: "Run checkout now using the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportOutcome(bot.Purchase(cmd.Context()))
	},
}

var buyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Log in fresh, then run checkout immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportOutcome(bot.LoginThenPurchase(cmd.Context()))
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check product availability once",
	RunE: func(cmd *cobra.Command, args []string) error {
		check := bot.CheckAvailability(cmd.Context())
		printStockCheck(check)
		if check.State == StockCheckFailed {
			return check.Err
		}
		return nil
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll product availability until it comes in stock",
	RunE: func(cmd *cobra.Command, args []string) error {
		check := bot.MonitorUntilAvailable(cmd.Context(),
			time.Duration(flagInterval)*time.Second, flagMax)
		printStockCheck(check)
		if check.State != StockInStock {
			return fmt.Errorf("product never came in stock (last state: %s)", check.State)
		}
		return nil
	},
}

var snipeCmd = &cobra.Command{
	Use:   "snipe",
	Short: "Wait for a restock, then check out automatically",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportOutcome(bot.MonitorAndPurchase(cmd.Context(),
			time.Duration(flagInterval)*time.Second, flagMax))
	},
}

func printStockCheck(check StockCheck) {
	switch check.State {
	case StockInStock:
		fmt.Printf("✓ IN STOCK: %s\n", check.Title)
	case StockOutOfStock:
		fmt.Printf("✗ Out of stock (matched %q): %s\n", check.Indicator, check.Title)
	case StockCheckFailed:
		fmt.Printf("⚠ Check failed: %v\n", check.Err)
	default:
		fmt.Println("? Stock state unknown")
	}
}

func reportOutcome(outcome PurchaseOutcome) error {
	for _, step := range outcome.Steps {
		marker := "✓"
		switch step.Outcome {
		case StepSkippedNotFound:
			marker = "⏭"
		case StepFailedExhausted:
			marker = "✗"
		}
		fmt.Printf("  %s %-14s %-18s %s\n", marker, step.Step, step.Outcome, formatDuration(step.Elapsed))
	}

	if !outcome.Success {
		return fmt.Errorf("purchase failed after %s: %s",
			formatDuration(outcome.Elapsed), outcome.FailureReason)
	}

	fmt.Println()
	fmt.Println("🎉 ALL THINGS DONE! LET'S PAY!")
	fmt.Printf("Payment page: %s\n", outcome.PaymentURL)
	fmt.Printf("Total time: %s\n", formatDuration(outcome.Elapsed))

	// Payment is completed by hand, so the browser showing the payment
	// page must survive until the operator is done with it.
	if cfg.KeepBrowserOpen {
		holdBrowserOpen()
	}
	return nil
}

// promptInput is swapped out in tests.
var promptInput io.Reader = os.Stdin

func holdBrowserOpen() {
	fmt.Print("Press Enter to close the browser...")
	_, _ = bufio.NewReader(promptInput).ReadString('\n')
	fmt.Println()
}

func formatDuration(d time.Duration) string {
	seconds := d.Seconds()
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.2fs", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %.1fs", int(seconds)/60, math.Mod(seconds, 60))
	default:
		return fmt.Sprintf("%dh %dm %.1fs",
			int(seconds)/3600, (int(seconds)%3600)/60, math.Mod(seconds, 60))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "_data/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&flagURL, "url", "u", "", "product page URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagHeadless, "headless", false, "run the browser headless")

	for _, cmd := range []*cobra.Command{monitorCmd, snipeCmd} {
		cmd.Flags().IntVarP(&flagInterval, "interval", "i", 30, "seconds between stock checks")
		cmd.Flags().IntVarP(&flagMax, "max-checks", "m", 100, "give up after this many checks")
	}

	rootCmd.AddCommand(loginCmd, purchaseCmd, buyCmd, checkCmd, monitorCmd, snipeCmd)
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
