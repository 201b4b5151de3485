package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/schema"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	ClassCount    int
	RelationCount int
	FieldCount    int
	DataSources   []string
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <schema-dir>",
		Short: "Compile a CUE schema to class metadata",
		Long: `Compile CUE class and relation declarations to schema metadata.

Inheritance is resolved (ancestor fields first), defaults are filled in
for tables, keys, data sources and relation columns, and the result is
written as JSON for inspection or tooling.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, loadErrors := schema.LoadDir(schemaDir)
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, schemaDir)
	for _, c := range loaded.Schema.Classes {
		formatter.VerboseLog("Compiled class: %s (%s.%s)", c.Name, c.DataSource, c.Table)
	}

	stats := calculateStats(loaded.Schema)

	if opts.Output != "" {
		if err := writeSchemaToFile(loaded.Schema, opts.Output); err != nil {
			return commandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, loaded.Schema, stats, opts.Output)
}

// calculateStats computes summary statistics from a compiled schema.
func calculateStats(s *ir.Schema) CompilationStats {
	stats := CompilationStats{
		ClassCount:    len(s.Classes),
		RelationCount: len(s.Relations),
		DataSources:   s.DataSources(),
	}
	for _, c := range s.Classes {
		stats.FieldCount += len(c.Fields)
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, s *ir.Schema, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(s)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d class(es), %d relation(s)\n\n",
		stats.ClassCount, stats.RelationCount)

	if len(s.Classes) > 0 {
		fmt.Fprintln(formatter.Writer, "Classes:")
		for _, c := range s.Classes {
			parent := ""
			if c.Parent != "" {
				parent = " extends " + c.Parent
			}
			fmt.Fprintf(formatter.Writer, "  %s%s: %d field(s), key %s, %s.%s\n",
				c.Name, parent, len(c.Fields), c.PrimaryKey, c.DataSource, c.Table)
		}
		fmt.Fprintln(formatter.Writer)
	}

	if len(s.Relations) > 0 {
		fmt.Fprintln(formatter.Writer, "Relations:")
		for _, r := range s.Relations {
			fmt.Fprintf(formatter.Writer, "  %s: %s ↔ %s\n", r.Name, r.Left.Class, r.Right.Class)
		}
		fmt.Fprintln(formatter.Writer)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote schema to %s\n", outputFile)
	}
	return nil
}

// outputCompileErrors outputs load, compile and validation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := schemaErrorCode(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := schemaErrorCode(err)
		var loadErr *schema.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// writeSchemaToFile writes the compiled schema as indented JSON.
func writeSchemaToFile(s *ir.Schema, filename string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
