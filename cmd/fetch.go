package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/webharvest/webharvest/internal/scrape"
)

func newFetchCmd() *cobra.Command {
	var (
		timeout     time.Duration
		userAgent   string
		includeHTML bool
		removals    []string
	)

	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Fetch a single page and print the extracted content as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			req := scrape.FetchRequest{
				URL:       args[0],
				UserAgent: userAgent,
			}
			if timeout > 0 {
				req.Timeout = timeout
			}

			resp, err := a.Scraper.Scrape(cmd.Context(), req, removals)
			if err != nil {
				return fmt.Errorf("scrape failed: %w", err)
			}
			if !includeHTML {
				resp.CleanHTML = ""
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-attempt timeout override")
	cmd.Flags().StringVar(&userAgent, "user-agent", "", "user-agent override")
	cmd.Flags().BoolVar(&includeHTML, "html", false, "include cleaned HTML in the output")
	cmd.Flags().StringSliceVar(&removals, "remove", nil, "extra element selectors to strip")
	return cmd
}
