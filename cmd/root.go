package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/webharvest/webharvest/internal/app"
	"github.com/webharvest/webharvest/internal/config"
)

var cfgFile string

// newApp is the application factory, replaceable in tests.
var newApp = func() (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webharvest",
		Short: "A resilient web page fetcher and content extractor.",
		Long: `webharvest fetches web pages through a cascade of strategies, a full
browser first and a plain HTTP client second, gated by per-domain rate
limiting and a circuit breaker, then extracts a clean text rendition of
the page.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus WEBHARVEST_* env)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newFetchCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
