package cmd

import (
	"fmt"
	"net/url"
	"os"
	"time"

	errors "github.com/frahmantamala/vip-checkout/internal"
	"github.com/frahmantamala/vip-checkout/internal/checkout"
	"github.com/frahmantamala/vip-checkout/internal/core/events"
	"github.com/frahmantamala/vip-checkout/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pending payment of the profile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := newApplication(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()
		ctx := app.profileContext(cmd.Context())

		s, err := app.storeFor(app.Profile).Load(ctx)
		if err != nil {
			return errors.NewInternalError("could not read the pending payment", err)
		}
		if s == nil {
			fmt.Printf("profile %s: no pending payment\n", app.Profile)
			return nil
		}

		fmt.Printf("profile: %s\n", app.Profile)
		fmt.Printf("reference: %s\n", s.ReferenceID)
		fmt.Printf("amount: %s\n", checkout.FormatVND(s.Amount))
		fmt.Printf("method: %s (%s)\n", s.Method, s.IntegrationType)
		fmt.Printf("created: %s\n", s.CreatedAt.Local().Format(time.RFC3339))
		if s.IsExpired(time.Now(), app.Config.Checkout.SessionTTL) {
			fmt.Println("expired: yes, it will be reported as stale when reconciled")
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the pending payment and start over",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := newApplication(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()
		ctx := app.profileContext(cmd.Context())

		if err := app.storeFor(app.Profile).Clear(ctx); err != nil {
			return errors.NewInternalError("could not clear the pending payment", err)
		}
		if err := app.Bus.Publish(ctx, events.NewSessionClearedEvent(app.Profile, "reset")); err != nil {
			app.Logger.Warn("failed to publish event", "error", err)
		}
		fmt.Printf("profile %s: pending payment cleared\n", app.Profile)
		return nil
	},
}

var (
	reconcileRoute string
	reconcileQuery string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [return-url]",
	Short: "Reconcile a provider return by hand",
	Long: `Reconcile a provider return the way the return server would, e.g. when the browser never reached it.
Pass the full return URL, or --route with --query.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		route, query := reconcileRoute, reconcileQuery
		if len(args) == 1 {
			u, err := url.Parse(args[0])
			if err != nil {
				return errors.NewValidationError("return URL cannot be parsed", errors.ErrCodeValidationFailed)
			}
			route, query = u.Path, u.RawQuery
		}
		params, err := url.ParseQuery(query)
		if err != nil {
			return errors.NewValidationError("query cannot be parsed", errors.ErrCodeValidationFailed)
		}

		app, err := newApplication(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()
		ctx := app.profileContext(cmd.Context())

		reconciler := checkout.NewReconciler(app.storeFor(app.Profile), app.Bus, app.Config.Checkout.SessionTTL, app.Logger)
		outcome := reconciler.Reconcile(ctx, route, params)
		ui.PrintOutcome(os.Stdout, outcome)

		for _, action := range outcome.Actions() {
			switch action {
			case checkout.ActionRetry:
				fmt.Printf("retry: %s\n", app.Config.Checkout.RetryURL)
			case checkout.ActionDashboard:
				fmt.Printf("dashboard: %s\n", app.Config.Checkout.DashboardURL)
			}
		}
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileRoute, "route", checkout.RouteGenericResult, "return route the provider used")
	reconcileCmd.Flags().StringVar(&reconcileQuery, "query", "", "raw query string the provider sent")
}
