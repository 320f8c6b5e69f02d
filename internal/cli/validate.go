package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/redpesk-addons/afb-jscli/internal/scenario"
)

// ValidationResult is the outcome of validating one scenario file.
type ValidationResult struct {
	File        string `json:"file"`
	Valid       bool   `json:"valid"`
	Name        string `json:"name,omitempty"`
	Connections int    `json:"connections,omitempty"`
	Steps       int    `json:"steps,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario>...",
		Short: "Validate scenarios without running them",
		Long: `Parse and validate scenario files without connecting to any binding.

Checks the document structure, the operations and the consistency of every
step with the connection it targets.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, files []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	results := make([]ValidationResult, 0, len(files))
	invalid := 0
	var text strings.Builder
	for _, file := range files {
		formatter.VerboseLog("validating %s", file)
		sc, err := scenario.Load(file)
		if err != nil {
			invalid++
			results = append(results, ValidationResult{File: file, Error: err.Error()})
			fmt.Fprintf(&text, "✗ %s\n  %v\n", file, err)
			continue
		}
		results = append(results, ValidationResult{
			File:        file,
			Valid:       true,
			Name:        sc.Name,
			Connections: len(sc.Connections),
			Steps:       len(sc.Steps),
		})
		fmt.Fprintf(&text, "✓ %s (%s: %d steps)\n", file, sc.Name, len(sc.Steps))
	}

	if invalid > 0 {
		if err := formatter.Error(ErrCodeInvalidScenario, fmt.Sprintf("%d of %d scenarios invalid", invalid, len(files)), results); err != nil {
			return err
		}
		if opts.Format != "json" {
			fmt.Fprint(cmd.OutOrStdout(), text.String())
		}
		return NewExitError(ExitFailure, "invalid scenarios")
	}
	return formatter.Success(text.String(), results)
}
