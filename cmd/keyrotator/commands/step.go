package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systmms/keyrotator/internal/config"
	krerrors "github.com/systmms/keyrotator/internal/errors"
	"github.com/systmms/keyrotator/internal/handler"
	"github.com/systmms/keyrotator/pkg/rotation"
)

// NewStepCommand creates the step command
func NewStepCommand(cfg *config.Config, clients Clients) *cobra.Command {
	var (
		secretID string
		token    string
	)

	validSteps := make([]string, 0, len(rotation.Steps))
	for _, s := range rotation.Steps {
		validSteps = append(validSteps, string(s))
	}

	cmd := &cobra.Command{
		Use:   "step <" + strings.Join(validSteps, "|") + ">",
		Short: "Run one rotation step",
		Long: `Run a single rotation step against a secret, exactly as the Lambda
function would for the same invocation. Use it to resume a rotation that
stopped part way, with the version token shown by 'keyrotator status'.`,
		Example: `  # Re-run the test step of a pending rotation
  keyrotator step testSecret --secret-id /dev/jenkins/mfa/alice --token 3f1b5a34-8c1e-4b6e-9a61-2f0c6d1e7a55`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: validSteps,
		RunE: func(cmd *cobra.Command, args []string) error {
			step := rotation.Step(args[0])
			if !step.Valid() {
				return krerrors.UserError{
					Message:    fmt.Sprintf("unknown step %q", args[0]),
					Suggestion: "Use one of: " + strings.Join(validSteps, ", "),
				}
			}

			h, err := newHandler(cmd, cfg, clients)
			if err != nil {
				return err
			}

			result, err := h.Run(cmd.Context(), handler.Event{
				SecretId:           secretID,
				ClientRequestToken: token,
				Step:               string(step),
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", result.Step, result.Outcome)
			return nil
		},
	}

	cmd.Flags().StringVar(&secretID, "secret-id", "", "Secret name or ARN")
	cmd.Flags().StringVar(&token, "token", "", "Version token (ClientRequestToken) of the rotation")
	_ = cmd.MarkFlagRequired("secret-id")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}
