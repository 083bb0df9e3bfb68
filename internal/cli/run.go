package cli

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keshon/djwillex/internal/config"
	"github.com/keshon/djwillex/internal/core"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve commands until shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runLoop(ctx)
		},
	}
}

// runLoop starts the bot and starts it again for every Restart signal.
// Configuration is reloaded on each start.
func runLoop(ctx context.Context) error {
	for {
		log.Printf("[INFO] Starting %s %s...", AppName, Version)

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		sig, err := runOnce(ctx, cfg)
		if err != nil {
			return err
		}
		if sig != core.Restart {
			log.Println("[DONE] Bye")
			return nil
		}
		log.Println("[INFO] Restarting...")
	}
}

// runOnce runs one bot lifetime and reports how it ended.
func runOnce(parent context.Context, cfg *config.Config) (core.Signal, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return 0, err
	}
	if err := a.start(ctx); err != nil {
		a.close()
		return 0, err
	}

	sig := waitForSignal(ctx, a.runtime.Signals())
	log.Printf("[INFO] %v, disconnecting", sig)

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := a.bot.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] Disconnecting voice: %v", err)
	}
	a.close()
	return sig, nil
}

// waitForSignal blocks until a control signal arrives. The end of ctx
// counts as Terminate.
func waitForSignal(ctx context.Context, signals <-chan core.Signal) core.Signal {
	select {
	case sig := <-signals:
		return sig
	case <-ctx.Done():
		return core.Terminate
	}
}

func errMissing(what string) error {
	return fmt.Errorf("%s is not configured", what)
}
