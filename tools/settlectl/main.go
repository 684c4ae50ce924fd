// Command settlectl is the operator CLI for the settlement service: ledger
// audits, event inspection and manual retries.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yashrajoria/settlement-service/common/logger"
	"github.com/yashrajoria/settlement-service/config"
	"github.com/yashrajoria/settlement-service/database"
	aws_pkg "github.com/yashrajoria/settlement-service/pkg/aws"
	"github.com/yashrajoria/settlement-service/repository"
	"github.com/yashrajoria/settlement-service/services"
	"go.uber.org/zap"
)

// env is what every subcommand runs against.
type env struct {
	query *services.QueryService
	queue services.RetryQueue // nil when RETRY_QUEUE_URL is unset
	close func()
}

type opener func(ctx context.Context) (*env, error)

func main() {
	if err := newRootCmd(openEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	zlog, err := logger.Initialize(cfg.AppEnv)
	if err != nil {
		return nil, err
	}
	db, err := database.ConnectPostgres(cfg, zlog)
	if err != nil {
		return nil, err
	}

	e := &env{
		query: services.NewQueryService(repository.NewStore(db), nil, nil, zlog),
		close: func() {
			_ = database.Close(db)
			_ = zlog.Sync()
		},
	}
	if cfg.RetryQueueURL != "" {
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			zlog.Warn("AWS config unavailable, retries disabled", zap.Error(err))
		} else {
			e.queue = aws_pkg.NewRetryQueue(awsCfg, cfg.RetryQueueURL, zlog)
		}
	}
	return e, nil
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "settlectl",
		Short:         "Operate the settlement service ledger and event log",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	ledger := &cobra.Command{Use: "ledger", Short: "Ledger maintenance"}
	ledger.AddCommand(auditCmd(open))

	events := &cobra.Command{Use: "events", Short: "Inbound payment events"}
	events.AddCommand(listEventsCmd(open), retryEventCmd(open))

	root.AddCommand(ledger, events)
	return root
}
