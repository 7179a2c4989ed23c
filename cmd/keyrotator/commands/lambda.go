package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/keyrotator/internal/config"
	"github.com/systmms/keyrotator/internal/handler"
	"github.com/systmms/keyrotator/internal/metrics"
	"github.com/systmms/keyrotator/pkg/rotation"
)

// NewLambdaCommand creates the lambda command
func NewLambdaCommand(cfg *config.Config, clients Clients) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Serve Secrets Manager rotation invocations",
		Long: `Start the AWS Lambda runtime loop and handle rotation invocations.

Configuration is read from the config file when present and from
KEYROTATOR_* environment variables, so a Lambda function usually needs
no file at all.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newHandler(cmd, cfg, clients)
			if err != nil {
				return err
			}
			h.Start()
			return nil
		},
	}
}

func newHandler(cmd *cobra.Command, cfg *config.Config, clients Clients) (*handler.Handler, error) {
	m := metrics.New()
	coord, err := newCoordinator(cmd.Context(), cfg, clients, rotation.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	def := cfg.Definition
	return handler.New(coord,
		handler.WithLogger(cfg.Logger),
		handler.WithMetrics(m, def.Metrics.Pushgateway, def.Metrics.Job),
	), nil
}
