package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Usage example on the command line:
// > go run main.go --url http://localhost:8080/healthz --interval 5s --timeout 2m
func main() {
	var url string
	var interval, timeout time.Duration
	cmd := &cobra.Command{
		Use:          "wait-until-available",
		Short:        "Block until the customers service answers its health check",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return waitUntilAvailable(ctx, url, interval)
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080/healthz", "URL that must answer with 200")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "time between two attempts")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long, 0 waits forever")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func waitUntilAvailable(ctx context.Context, url string, interval time.Duration) error {
	client := &http.Client{Timeout: interval}
	var totalWaitTime time.Duration
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		res, err := client.Do(req)
		if err == nil {
			res.Body.Close()
			if res.StatusCode == http.StatusOK {
				fmt.Println(res.Status)
				return nil
			}
			fmt.Println(res.Status)
		} else {
			fmt.Println(err)
		}

		totalWaitTime += interval
		fmt.Printf("Waiting %s\n", totalWaitTime)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s not available: %w", url, ctx.Err())
		case <-time.After(interval):
		}
	}
}
