package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/confeitaria/svc/billing"
)

func reconcileCmd(envFiles *[]string) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Refresh stored subscription statuses from the payment processor",
		Long: `Re-query the payment processor for every stored subscription record,
or for a single account with --email, and write the live status back.

Examples:
  confeitaria reconcile
  confeitaria reconcile --email baker@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFiles)
			if err != nil {
				return err
			}
			if !cfg.Billing.ProcessorConfigured() {
				return billing.ErrNotConfigured
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Billing.ReconcileTimeout)
			defer cancel()

			log := newLogger(cfg)
			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if email != "" {
				status, err := a.query.Reconcile(ctx, email)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s\n", email, status)
				return nil
			}

			report, err := billing.NewReconciler(a.store, a.query, cfg.Billing.ReconcileBatch, log).Run(ctx)
			fmt.Fprintf(out, "checked %d, changed %d, failed %d in %s\n",
				report.Checked, report.Changed, report.Failed, report.Took.Round(time.Millisecond))
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "reconcile a single account")
	return cmd
}
