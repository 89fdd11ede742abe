package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/d2c-launcher/coordinator/internal/config"
	"github.com/d2c-launcher/coordinator/internal/identity"
)

// Wrapper function for the helper to allow testing
var queryHelper = func(ctx context.Context, path string, timeout time.Duration) (*identity.Snapshot, error) {
	return identity.NewExecHelper(path, identity.WithHelperTimeout(timeout)).Query(ctx)
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Inspect the local identity provider",
}

var identityProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run the identity helper once and print its snapshot",
	Long: `Run the identity helper once and print the decoded snapshot.

Pixel data is summarized and the session credential is replaced by its
length, so the output is safe to paste into a bug report.`,
	Args: cobra.NoArgs,
	RunE: runIdentityProbe,
}

var probeHelperPath string

func init() {
	identityProbeCmd.Flags().StringVar(&probeHelperPath, "helper", "", "Helper executable (default from identity.helper_path)")
	identityCmd.AddCommand(identityProbeCmd)
}

func runIdentityProbe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	path := probeHelperPath
	if path == "" {
		path = cfg.Identity.ResolveHelperPath()
	}
	out := cmd.OutOrStdout()

	snap, err := queryHelper(cmd.Context(), path, cfg.Identity.HelperTimeout())
	if err != nil {
		return fmt.Errorf("identity helper %s: %w", path, err)
	}

	body, err := json.MarshalIndent(snap.Redacted(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	fmt.Fprintf(out, "Helper: %s\n%s\n\n", path, body)

	id, credential, err := snap.Resolve()
	switch {
	case identity.IsNotRunning(err):
		fmt.Fprintln(out, "Identity provider is not running.")
		return nil
	case err != nil:
		return fmt.Errorf("snapshot rejected: %w", err)
	}

	fmt.Fprintf(out, "User:       %s\n", id.Name)
	fmt.Fprintf(out, "Account ID: %d\n", id.AccountID())
	fmt.Fprintf(out, "Avatar:     %t\n", id.Avatar != nil)
	fmt.Fprintf(out, "Credential: %t\n", credential != "")
	return nil
}
