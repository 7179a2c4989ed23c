package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/systmms/keyrotator/internal/config"
	"github.com/systmms/keyrotator/pkg/rotation"
)

// secretStatus is what the status command reports about one secret.
type secretStatus struct {
	SecretID        string          `json:"secret_id" yaml:"secret_id"`
	RotationEnabled bool            `json:"rotation_enabled" yaml:"rotation_enabled"`
	Principal       string          `json:"principal" yaml:"principal"`
	ActiveKey       string          `json:"active_key" yaml:"active_key"`
	PendingKey      string          `json:"pending_key,omitempty" yaml:"pending_key,omitempty"`
	Versions        []versionStatus `json:"versions" yaml:"versions"`
	Keys            []keyStatus     `json:"keys" yaml:"keys"`
	Warnings        []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type versionStatus struct {
	Token  string   `json:"token" yaml:"token"`
	Stages []string `json:"stages" yaml:"stages"`
}

type keyStatus struct {
	ID        string    `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Role      string    `json:"role,omitempty" yaml:"role,omitempty"`
}

// NewStatusCommand creates the status command
func NewStatusCommand(cfg *config.Config, clients Clients) *cobra.Command {
	var (
		secretID     string
		statusFormat string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the rotation state of a secret",
		Long: `Display the rotation state of a secret and its IAM user.

Shows information including:
- Version tokens and their staging labels
- The active and pending access key recorded in the secret's tags
- The user's access keys and their age
- Warnings for states the next rotation will not handle cleanly`,
		Example: `  # Show status for a secret
  keyrotator status --secret-id /dev/jenkins/mfa/alice

  # Machine readable output
  keyrotator status --secret-id /dev/jenkins/mfa/alice --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch statusFormat {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("unsupported format %q: use table, json or yaml", statusFormat)
			}

			if err := loadConfig(cfg); err != nil {
				return err
			}
			store, authority, err := clients(cmd.Context(), cfg.Definition)
			if err != nil {
				return err
			}

			status, err := collectStatus(cmd.Context(), store, authority, cfg.Definition.TagKeys(), secretID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch statusFormat {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			case "yaml":
				enc := yaml.NewEncoder(out)
				defer func() { _ = enc.Close() }()
				return enc.Encode(status)
			default:
				return outputStatusTable(out, status, time.Now())
			}
		},
	}

	cmd.Flags().StringVar(&secretID, "secret-id", "", "Secret name or ARN")
	cmd.Flags().StringVar(&statusFormat, "format", "table", "Output format: table, json, yaml")
	_ = cmd.MarkFlagRequired("secret-id")

	return cmd
}

func collectStatus(ctx context.Context, store rotation.SecretStore, authority rotation.CredentialAuthority, keys rotation.TagKeys, secretID string) (*secretStatus, error) {
	meta, err := store.Describe(ctx, secretID)
	if err != nil {
		return nil, err
	}
	rec := rotation.NewRecord(meta, keys)

	status := &secretStatus{
		SecretID:        rec.ID,
		RotationEnabled: rec.RotationEnabled,
		Principal:       rec.Principal,
		ActiveKey:       rec.ActiveCredentialID,
		PendingKey:      rec.PendingCredentialID,
	}

	tokens := make([]string, 0, len(rec.Versions))
	for token := range rec.Versions {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		stages := append([]string(nil), rec.Versions[token]...)
		sort.Strings(stages)
		status.Versions = append(status.Versions, versionStatus{Token: token, Stages: stages})
	}

	if rec.Principal == "" {
		status.Warnings = append(status.Warnings, fmt.Sprintf("secret has no %q tag, rotation will fail", keys.Principal))
		return status, nil
	}

	creds, err := authority.ListCredentials(ctx, rec.Principal)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(creds, func(i, j int) bool {
		return creds[i].CreatedAt.Before(creds[j].CreatedAt)
	})
	for _, c := range creds {
		ks := keyStatus{ID: c.ID, CreatedAt: c.CreatedAt}
		switch c.ID {
		case rec.ActiveCredentialID:
			ks.Role = "active"
		case rec.PendingCredentialID:
			ks.Role = "pending"
		}
		status.Keys = append(status.Keys, ks)
	}

	status.Warnings = append(status.Warnings, hazards(rec, creds)...)
	return status, nil
}

// hazards lists states the next rotation will not handle cleanly.
func hazards(rec *rotation.Record, creds []rotation.Credential) []string {
	var warnings []string

	if !rec.RotationEnabled {
		warnings = append(warnings, "rotation is disabled")
	}
	if len(creds) >= rotation.MaxCredentials && creds[0].ID == rec.ActiveCredentialID {
		warnings = append(warnings, fmt.Sprintf("active key %s is the oldest of %d keys and will be deleted by the next createSecret", creds[0].ID, len(creds)))
	}

	_, pending := rec.VersionWithStage(rotation.StagePending)
	if rec.PendingCredentialID != "" && !pending {
		warnings = append(warnings, fmt.Sprintf("pending key tag names %s but no version is staged %s", rec.PendingCredentialID, rotation.StagePending))
	}

	known := map[string]bool{}
	for _, c := range creds {
		known[c.ID] = true
	}
	if rec.ActiveCredentialID != "" && !known[rec.ActiveCredentialID] {
		warnings = append(warnings, fmt.Sprintf("active key %s no longer exists for %s", rec.ActiveCredentialID, rec.Principal))
	}
	if rec.PendingCredentialID != "" && !known[rec.PendingCredentialID] {
		warnings = append(warnings, fmt.Sprintf("pending key %s no longer exists for %s", rec.PendingCredentialID, rec.Principal))
	}
	return warnings
}

func outputStatusTable(out io.Writer, status *secretStatus, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)

	fmt.Fprintf(w, "Secret:\t%s\n", status.SecretID)
	fmt.Fprintf(w, "Rotation:\t%s\n", enabledString(status.RotationEnabled))
	fmt.Fprintf(w, "Principal:\t%s\n", orDash(status.Principal))
	fmt.Fprintf(w, "Active key:\t%s\n", orDash(status.ActiveKey))
	fmt.Fprintf(w, "Pending key:\t%s\n", orDash(status.PendingKey))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "VERSION\tSTAGES")
	fmt.Fprintln(w, "-------\t------")
	for _, v := range status.Versions {
		fmt.Fprintf(w, "%s\t%s\n", v.Token, orDash(strings.Join(v.Stages, ", ")))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "ACCESS KEY\tCREATED\tAGE\tROLE")
	fmt.Fprintln(w, "----------\t-------\t---\t----")
	for _, k := range status.Keys {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", k.ID, k.CreatedAt.UTC().Format(time.RFC3339), formatAge(now.Sub(k.CreatedAt)), orDash(k.Role))
	}

	if err := w.Flush(); err != nil {
		return err
	}

	for _, warning := range status.Warnings {
		fmt.Fprintf(out, "\n⚠️  %s", warning)
	}
	if len(status.Warnings) > 0 {
		fmt.Fprintln(out)
	}
	return nil
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%d min", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hr", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	}
}

func enabledString(enabled bool) string {
	if enabled {
		return "✅ Enabled"
	}
	return "❌ Disabled"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
