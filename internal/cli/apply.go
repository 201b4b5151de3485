package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/stead/internal/engine"
	"github.com/roach88/stead/internal/ir"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	DryRun bool
}

// ApplyResult holds the apply command's output.
type ApplyResult struct {
	TxID      string `json:"tx"`
	Objects   int    `json:"objects"`   // objects written by the commit
	Digest    string `json:"digest"`    // digest of the applied snapshot
	Committed bool   `json:"committed"` // false for dry runs
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <snapshot-file>",
		Short: "Commit a transaction snapshot",
		Long: `Deserialize a transaction snapshot into a fresh transaction and commit it.

This completes a handoff: another process serialized its pending changes,
and this process writes them to the configured data sources. With
--dry-run the snapshot is only deserialized and checked.

Exit codes:
  0 - Snapshot committed (or checked, with --dry-run)
  1 - Snapshot rejected or commit failed; nothing was committed
  2 - Command error (unreadable file or config, data source unavailable)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "deserialize and check without committing")

	return cmd
}

func runApply(opts *ApplyOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()

	data, err := os.ReadFile(path)
	if err != nil {
		return commandError(formatter, ErrCodeSnapshot, fmt.Sprintf("reading snapshot: %v", err))
	}

	env, err := openFromFlags(ctx, opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer env.Close()

	tx := env.NewTransaction(formatter.Logger())
	defer tx.Close()

	if err := tx.Deserialize(data); err != nil {
		return applyFailure(formatter, err)
	}
	pending := len(tx.DirtyObjects())
	formatter.VerboseLog("Deserialized %d object(s), %d pending", len(tx.GetObjects()), pending)

	result := ApplyResult{TxID: tx.ID(), Objects: pending, Digest: ir.SnapshotDigest(data)}
	if !opts.DryRun {
		if err := tx.Commit(ctx); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				formatter.VerboseLog("Rollback failed: %v", rbErr)
			}
			return applyFailure(formatter, err)
		}
		result.Committed = true
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	if result.Committed {
		fmt.Fprintf(formatter.Writer, "✓ Committed %d object(s) from %s\n", result.Objects, path)
	} else {
		fmt.Fprintf(formatter.Writer, "✓ Snapshot %s is applicable: %d object(s) pending\n", path, result.Objects)
	}
	fmt.Fprintf(formatter.Writer, "  tx %s, digest %s\n", result.TxID, result.Digest)
	return nil
}

// applyFailure reports an engine error by its code (exit code 1).
func applyFailure(formatter *OutputFormatter, err error) error {
	code := string(engine.Code(err))
	if code == "" {
		code = ErrCodeGeneric
	}
	var details any
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		violations := make([]string, len(ve.Violations))
		for i, v := range ve.Violations {
			violations[i] = v.String()
		}
		details = violations
	}
	_ = formatter.Error(code, err.Error(), details)
	return WrapExitError(ExitFailure, "apply failed", err)
}
