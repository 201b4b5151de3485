package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stead/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                     `json:"valid"`
	Errors   []schema.ValidationError `json:"errors,omitempty"`
	Warnings []schema.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Validate a schema without writing output",
		Long: `Validate CUE class and relation declarations.

Reports every validation error at once, plus warnings for reference
cycles through non-nullable fields (objects on such a cycle can never
be inserted).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, loadErrors := schema.LoadDir(schemaDir)

	var validationErrors []schema.ValidationError
	for _, err := range loadErrors {
		var valErr schema.ValidationError
		if errors.As(err, &valErr) {
			validationErrors = append(validationErrors, valErr)
			continue
		}
		// Load and compile failures stop before validation.
		code, message := schemaErrorCode(err)
		return commandError(formatter, code, message)
	}
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, schemaDir)
	for _, c := range loaded.Schema.Classes {
		formatter.VerboseLog("Validated class: %s", c.Name)
	}
	for _, r := range loaded.Schema.Relations {
		formatter.VerboseLog("Validated relation: %s", r.Name)
	}

	return outputValidateSuccess(formatter, loaded.Warnings)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, warnings []schema.CycleWarning) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Warnings: warnings})
	}

	fmt.Fprintln(formatter.Writer, "✓ Schema valid")
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", w.Level, w.Message)
	}
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []schema.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
