package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/frahmantamala/vip-checkout/internal/settlement"
	"github.com/spf13/cobra"
)

var settleWorkers int

// settleCmd replays backend confirmations that failed after the card was charged. The backend
// treats a repeated confirmation of the same intent as a no-op.
var settleCmd = &cobra.Command{
	Use:   "settle <payment-intent-id>...",
	Short: "Confirm card payments with the backend again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApplication(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()
		ctx := app.profileContext(cmd.Context())

		workers := settleWorkers
		if workers <= 0 {
			workers = app.Config.Backend.SettlementWorkers
		}
		pool := settlement.NewPool(app.Backend, settlement.Config{
			MaxWorkers:     workers,
			JobQueueSize:   len(args),
			ConfirmTimeout: app.Config.Backend.Timeout,
		}, app.Logger)

		var (
			mu     sync.Mutex
			failed []string
		)
		for _, id := range args {
			id := id
			job := settlement.Job{
				PaymentIntentID: id,
				Done: func(err error) {
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						failed = append(failed, id)
						fmt.Printf("%s: %v\n", id, err)
						return
					}
					fmt.Printf("%s: settled\n", id)
				},
			}
			if err := pool.Submit(job); err != nil {
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
				fmt.Printf("%s: %v\n", id, err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.Config.Backend.Timeout*2)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("settlement interrupted: %w", err)
		}

		if len(failed) > 0 {
			return fmt.Errorf("%d of %d confirmations failed", len(failed), len(args))
		}
		return nil
	},
}

func init() {
	settleCmd.Flags().IntVar(&settleWorkers, "workers", 0, "concurrent confirmations (defaults to backend.settlement_workers)")
}
