package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// errUnbalanced makes the process exit non-zero so cron jobs can alert on it.
var errUnbalanced = errors.New("ledger is not balanced")

func auditCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check that every journal reference nets to zero per currency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			rows, err := e.query.AuditLedger(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "ledger balanced")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REFERENCE TYPE\tREFERENCE ID\tCURRENCY\tNET")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.ReferenceType, r.ReferenceID, r.Currency, r.Net)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return fmt.Errorf("%w: %d imbalanced references", errUnbalanced, len(rows))
		},
	}
}

func listEventsCmd(open opener) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inbound events by processing status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			events, err := e.query.Events(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROVIDER\tEVENT ID\tTYPE\tREFERENCE\tSOURCE\tATTEMPTS\tRECEIVED\tLAST ERROR")
			for _, ev := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					ev.Provider, ev.ProviderEventID, ev.EventType, ev.Reference, ev.Source,
					ev.Attempts, ev.ReceivedAt.UTC().Format(time.RFC3339), ev.LastError)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "FAILED", "Event status (RECEIVED, PROCESSED, FAILED)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows")
	return cmd
}

func retryEventCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <provider> <provider-event-id>",
		Short: "Queue a FAILED event for immediate reprocessing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			if e.queue == nil {
				return errors.New("retry queue not configured: set RETRY_QUEUE_URL")
			}
			job, err := e.query.Requeue(cmd.Context(), e.queue, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s/%s (attempt %d)\n", job.Provider, job.ProviderEventID, job.Attempt)
			return nil
		},
	}
}
