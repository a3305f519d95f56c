package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sydlexius/linernotes/internal/provider"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := &cli{}
	err := c.rootCmd().ExecuteContext(ctx)
	c.close()
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", userMessage(err))
		os.Exit(exitCode(err))
	}
}

// userMessage turns the typed failures into something a person can act on.
func userMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return "interrupted"
	}
	var rl *provider.ErrRateLimited
	if errors.As(err, &rl) {
		if rl.RetryAfter > 0 {
			return fmt.Sprintf("%s is rate limiting requests, try again in %s", rl.Provider.DisplayName(), rl.RetryAfter.Round(time.Second))
		}
		return fmt.Sprintf("%s is rate limiting requests, try again shortly", rl.Provider.DisplayName())
	}
	var auth *provider.ErrAuthRequired
	if errors.As(err, &auth) {
		return err.Error() + " (set spotify.token_file to a saved user token)"
	}
	return err.Error()
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case provider.IsRateLimited(err):
		return 75
	default:
		return 1
	}
}
