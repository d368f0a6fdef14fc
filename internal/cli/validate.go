package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lifequest/internal/catalog"
	"github.com/roach88/lifequest/internal/harness"
)

// Validation error codes.
const (
	ErrCodeConfig   = "E_CONFIG"
	ErrCodeCatalog  = "E_CATALOG"
	ErrCodeScenario = "E_SCENARIO"
)

// ValidationIssue is one problem found by validate.
type ValidationIssue struct {
	Source  string `json:"source"` // config path, catalog path or scenario file
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Items     int               `json:"catalog_items"`
	Scenarios int               `json:"scenarios"`
	Errors    []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [scenario-file...]",
		Short: "Validate configuration, shop catalog and scenarios",
		Long: `Check the configuration file and environment, compile the shop catalog
against its schema, and parse any scenario files given as arguments.
Nothing is written to the database.

Examples:
  lifequest validate
  lifequest validate --config lifequest.yaml
  lifequest validate scenarios/*.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, scenarioFiles []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	result := ValidationResult{}

	configSource := opts.ConfigPath
	if configSource == "" {
		configSource = "environment"
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		result.Errors = append(result.Errors, ValidationIssue{
			Source:  configSource,
			Code:    ErrCodeConfig,
			Message: err.Error(),
		})
	} else {
		formatter.VerboseLog("Config OK (%s)", configSource)

		catalogSource := cfg.CatalogPath
		if catalogSource == "" {
			catalogSource = "built-in"
		}
		cat, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			result.Errors = append(result.Errors, catalogIssue(catalogSource, err))
		} else {
			result.Items = len(cat.Items())
			formatter.VerboseLog("Catalog OK (%s, %d items)", catalogSource, result.Items)
		}
	}

	for _, path := range scenarioFiles {
		if _, err := harness.LoadScenario(path); err != nil {
			result.Errors = append(result.Errors, ValidationIssue{
				Source:  path,
				Code:    ErrCodeScenario,
				Message: err.Error(),
			})
			continue
		}
		result.Scenarios++
		formatter.VerboseLog("Scenario OK (%s)", path)
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}
	result.Valid = true
	return outputValidateSuccess(formatter, result)
}

func catalogIssue(source string, err error) ValidationIssue {
	issue := ValidationIssue{Source: source, Code: ErrCodeCatalog, Message: err.Error()}
	var loadErr *catalog.LoadError
	if errors.As(err, &loadErr) {
		issue.Message = loadErr.Message
		if loadErr.Pos.IsValid() {
			issue.Line = loadErr.Pos.Line()
		}
	}
	return issue
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Configuration valid (%d catalog items, %d scenarios)\n",
		result.Items, result.Scenarios)
	return nil
}

// outputValidationErrors outputs every validation issue.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
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

	for _, issue := range errs {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", issue.Source, issue.Line)
		} else {
			fmt.Fprintln(formatter.Writer, issue.Source)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
