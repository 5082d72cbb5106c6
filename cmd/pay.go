package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	errors "github.com/frahmantamala/vip-checkout/internal"
	"github.com/frahmantamala/vip-checkout/internal/capability"
	"github.com/frahmantamala/vip-checkout/internal/checkout"
	"github.com/frahmantamala/vip-checkout/internal/navigation"
	"github.com/frahmantamala/vip-checkout/internal/session"
	"github.com/frahmantamala/vip-checkout/internal/settlement"
	"github.com/frahmantamala/vip-checkout/internal/tokenizer"
	"github.com/frahmantamala/vip-checkout/internal/ui"
	"github.com/spf13/cobra"
)

var (
	payIntegration string
	payMethod      string
	payBank        string
	payAmount      int64
)

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Buy the VIP upgrade",
	Long:  `Choose how to pay among what the payment service offers, then run that checkout. Use the redirect or card subcommands to skip the choice.`,
	RunE:  runPay,
}

var payRedirectCmd = &cobra.Command{
	Use:   "redirect",
	Short: "Pay on the provider's hosted page",
	Long:  `Create the payment, remember it in the session store and open the provider's payment page in the browser. The return server reconciles the result.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPayWith(cmd, session.IntegrationRedirect)
	},
}

var payCardCmd = &cobra.Command{
	Use:   "card",
	Short: "Pay by card in this terminal",
	Long:  `Create a payment intent, collect card details here and confirm them with the card processor, including any extra authentication in the browser.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPayWith(cmd, session.IntegrationIntegrated)
	},
}

func init() {
	payCmd.Flags().StringVar(&payIntegration, "integration", "", "REDIRECT or INTEGRATED (asked when omitted)")
	payCmd.PersistentFlags().StringVar(&payMethod, "method", "", "payment method for redirects, e.g. VNPAY or STRIPE")
	payCmd.PersistentFlags().StringVar(&payBank, "bank", "", "bank code for methods that need one, e.g. NCB")
	payCmd.PersistentFlags().Int64Var(&payAmount, "amount", 0, "amount in VND (defaults to the VIP package price)")

	payCmd.AddCommand(payRedirectCmd)
	payCmd.AddCommand(payCardCmd)
}

func runPay(cmd *cobra.Command, _ []string) error {
	return runPayWith(cmd, session.IntegrationType(strings.ToUpper(payIntegration)))
}

// runPayWith runs one checkout; an empty integration is chosen from the capabilities.
func runPayWith(cmd *cobra.Command, integration session.IntegrationType) error {
	app, err := newApplication(cmd.Context())
	if err != nil {
		return err
	}
	defer app.close()
	ctx := app.profileContext(cmd.Context())

	caps, err := app.Registry.Load(ctx)
	if err != nil {
		return err
	}

	run := newCheckoutRun(ctx, app, caps)
	defer run.stopSettlement()

	if integration == "" {
		integration = session.IntegrationRedirect
		if run.interactive {
			if integration, err = ui.PickIntegration(run.prompter, caps); err != nil {
				return err
			}
		}
	}

	return run.pay(ctx, integration, checkout.Request{
		Method:   session.Method(strings.ToUpper(payMethod)),
		Amount:   payAmount,
		BankCode: strings.ToUpper(payBank),
	})
}

// checkoutRun is one terminal checkout. Both flows sit behind the dispatcher; the typed
// controllers are kept for what only one of them offers.
type checkoutRun struct {
	flows      *checkout.Dispatcher
	redirect   *checkout.RedirectController
	integrated *checkout.IntegratedController
	store      session.Store

	caps         *capability.Capabilities
	prompter     ui.Prompter
	interactive  bool
	minAmount    int64
	sessionTTL   time.Duration
	cardProvider session.Method
	redirectWait time.Duration

	out    io.Writer
	errOut io.Writer

	openDashboard  func(ctx context.Context) error
	stopSettlement func()
}

func newCheckoutRun(ctx context.Context, app *application, caps *capability.Capabilities) *checkoutRun {
	cfg := app.Config
	store := app.storeFor(app.Profile)
	navigator := navigation.NewBrowserNavigator(app.Logger)

	pool := settlement.NewPool(app.Backend, settlement.Config{
		MaxWorkers:     cfg.Backend.SettlementWorkers,
		JobQueueSize:   cfg.Backend.SettlementQueue,
		ConfirmTimeout: cfg.Backend.Timeout,
	}, app.Logger)

	cards := tokenizer.NewClient(tokenizer.Config{
		APIURL:           cfg.Card.APIURL,
		Timeout:          cfg.Card.Timeout,
		PollInterval:     cfg.Card.PollInterval,
		ChallengeTimeout: cfg.Card.ChallengeTimeout,
	}, app.Logger)

	redirect := checkout.NewRedirectController(app.dependencies(store, caps), navigator, app.options())
	integrated := checkout.NewIntegratedController(
		app.dependencies(store, caps),
		cards,
		pool,
		checkout.NewReconciler(store, app.Bus, cfg.Checkout.SessionTTL, app.Logger),
		navigator,
		checkout.IntegratedConfig{
			CardProvider:         session.Method(cfg.Checkout.CardProvider),
			DashboardURL:         cfg.Checkout.DashboardURL,
			SuccessRedirectDelay: cfg.Checkout.SuccessRedirectDelay,
		},
		app.options(),
	)

	return &checkoutRun{
		flows:         checkout.NewDispatcher(redirect, integrated),
		redirect:      redirect,
		integrated:    integrated,
		store:         store,
		caps:          caps,
		prompter:      ui.TerminalPrompter{},
		interactive:   ui.IsInteractive(),
		minAmount:     cfg.Checkout.MinAmount,
		sessionTTL:    cfg.Checkout.SessionTTL,
		cardProvider:  session.Method(cfg.Checkout.CardProvider),
		redirectWait:  cfg.Checkout.SuccessRedirectDelay,
		out:           os.Stdout,
		errOut:        os.Stderr,
		openDashboard: app.openDashboard,
		stopSettlement: func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Backend.Timeout)
			defer cancel()
			if err := pool.Shutdown(shutdownCtx); err != nil {
				app.Logger.Warn("settlement still running at exit", "error", err)
			}
		},
	}
}

func (r *checkoutRun) pay(ctx context.Context, integration session.IntegrationType, preset checkout.Request) error {
	switch integration {
	case session.IntegrationRedirect:
		return r.payRedirect(ctx, preset)
	case session.IntegrationIntegrated:
		return r.payCard(ctx, preset.Amount)
	}
	// the dispatcher refuses integration types nobody registered
	_, err := r.flows.Start(ctx, integration, preset)
	return err
}

// retryOrDashboard shows err and asks what to do next. It reports false once the user left
// for the dashboard.
func (r *checkoutRun) retryOrDashboard(ctx context.Context, err error, status checkout.Status) (bool, error) {
	ui.PrintError(r.errOut, err)
	action, promptErr := ui.NextAction(r.prompter, checkout.Outcome{Status: status})
	if promptErr != nil {
		return false, promptErr
	}
	if action == checkout.ActionDashboard {
		return false, r.openDashboard(ctx)
	}
	return true, nil
}

func (r *checkoutRun) payRedirect(ctx context.Context, preset checkout.Request) error {
	if s, err := r.store.Load(ctx); err == nil && session.Resumable(s, time.Now(), r.sessionTTL) {
		fmt.Fprintf(r.out, "Payment %s is still pending and will be replaced.\n", s.ReferenceID)
	}

	req, err := r.redirectRequest(preset)
	if err != nil {
		return err
	}

	for {
		step, err := r.flows.Start(ctx, session.IntegrationRedirect, req)
		if err == nil {
			fmt.Fprintf(r.out, "Payment %s created. Continue on the %s.\n", step.ReferenceID, ui.CreateHyperlink(step.PaymentURL, "payment page"))
			if step.Notice != "" {
				fmt.Fprintln(r.out, step.Notice)
			}
			return nil
		}
		if !r.interactive {
			return err
		}

		retry, promptErr := r.retryOrDashboard(ctx, err, checkout.StatusError)
		if !retry || promptErr != nil {
			return promptErr
		}

		if errors.IsType(err, errors.ErrorTypeValidation) {
			if req, err = r.redirectRequest(checkout.Request{}); err != nil {
				return err
			}
		} else if last, ok := r.redirect.LastRequest(); ok {
			req = last
		}
	}
}

// redirectRequest completes preset from prompts where the terminal allows it.
func (r *checkoutRun) redirectRequest(preset checkout.Request) (checkout.Request, error) {
	req := preset
	if !r.interactive {
		if req.Amount == 0 {
			req.Amount = checkout.VIPPackage.Amount
		}
		return req, nil
	}

	var err error
	if req.Method == "" {
		if req.Method, err = ui.PickMethod(r.prompter, r.caps, checkout.DefaultProviders, session.IntegrationRedirect); err != nil {
			return req, err
		}
	}
	if req.BankCode == "" {
		if req.BankCode, err = ui.PickBank(r.prompter, checkout.DefaultProviders.Profile(req.Method)); err != nil {
			return req, err
		}
	}
	if req.Amount == 0 {
		if req.Amount, err = ui.AskAmount(r.prompter, checkout.VIPPackage.Amount, r.minAmount); err != nil {
			return req, err
		}
	}
	return req, nil
}

func (r *checkoutRun) payCard(ctx context.Context, amount int64) error {
	if !r.interactive {
		return fmt.Errorf("card payments need an interactive terminal")
	}

	if notice, pending := r.integrated.PendingNotice(ctx); pending {
		fmt.Fprintln(r.out, notice)
		index, err := r.prompter.Select("Continue", []string{"Create new payment", "Cancel"})
		if err != nil {
			return err
		}
		if index != 0 {
			return nil
		}
		if err := r.integrated.Reset(ctx); err != nil {
			return err
		}
	}

	var err error
	if amount == 0 {
		if amount, err = ui.AskAmount(r.prompter, checkout.VIPPackage.Amount, r.minAmount); err != nil {
			return err
		}
	}

	form, amount, err := r.startCard(ctx, amount)
	if form == nil || err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Paying %s for %s (reference %s)\n", form.Display, checkout.VIPPackage.Name, form.ReferenceID)

	for {
		card, err := ui.AskCard(r.prompter)
		if err != nil {
			return err
		}

		result, err := r.integrated.Submit(ctx, card)
		if err == nil {
			ui.PrintOutcome(r.out, result.Outcome)
			if result.Redirect != nil {
				fmt.Fprintf(r.out, "Opening your dashboard in %s...\n", r.redirectWait)
				<-result.Redirect.Done()
			}
			r.stopSettlement()
			if r.integrated.SettlementStatus() == checkout.SettlementFailed {
				fmt.Fprintf(r.out, "Your payment went through but activation is delayed. Run `vip-checkout settle %s` to retry.\n", result.PaymentIntentID)
			}
			return nil
		}

		retry, promptErr := r.retryOrDashboard(ctx, err, checkout.StatusFailed)
		if !retry || promptErr != nil {
			return promptErr
		}
		if r.integrated.State() != checkout.StateAwaitingCardInput {
			if form, amount, err = r.startCard(ctx, amount); form == nil || err != nil {
				return err
			}
		}
	}
}

// startCard creates the intent behind the card form. A refused creation goes through the same
// retry-or-dashboard decision as a declined card and keeps the amount unless it was the
// problem. A nil form without error means the user went to the dashboard.
func (r *checkoutRun) startCard(ctx context.Context, amount int64) (*checkout.CardStep, int64, error) {
	for {
		step, err := r.flows.Start(ctx, session.IntegrationIntegrated, checkout.Request{Method: r.cardProvider, Amount: amount})
		if err == nil {
			return step.Card, amount, nil
		}

		retry, promptErr := r.retryOrDashboard(ctx, err, checkout.StatusError)
		if !retry || promptErr != nil {
			return nil, amount, promptErr
		}
		if errors.IsType(err, errors.ErrorTypeValidation) {
			if amount, err = ui.AskAmount(r.prompter, checkout.VIPPackage.Amount, r.minAmount); err != nil {
				return nil, amount, err
			}
		}
	}
}
