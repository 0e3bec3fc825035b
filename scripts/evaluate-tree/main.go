// evaluate-tree validates and evaluates a decision tree file without a database.
//
// Usage: go run ./scripts/evaluate-tree [flags] <tree.yaml>
//
// Prints warnings, the recommended path and the ranked paths as a table.
// Exits non-zero when the tree has structural errors or exceeds the limits.
//
// Flags:
//
//	--top        Show only the best N ranked paths (default: all)
//	--max-paths  Refuse trees that would produce more paths (default: 100000)
//	--json       Print the evaluation as JSON instead of a table
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/jinzhu/inflection"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-decisions/pkg/decision"
	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
	"github.com/ekaya-inc/ekaya-decisions/pkg/treefile"
)

var (
	top      int
	maxPaths int
	asJSON   bool
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	bestStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "evaluate-tree <tree.yaml>",
	Short: "Evaluate a decision tree file and rank its paths",
	Long: `Evaluate every root-to-leaf path of a decision tree written in YAML and rank
the paths by weighted score.

Examples:
  # Rank every path
  evaluate-tree relocate.yaml

  # Show the best three paths as JSON
  evaluate-tree --top 3 --json relocate.yaml`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := run(cmd.Context(), cmd.OutOrStdout(), args[0])
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("error: ")+err.Error())
		}
		return err
	},
}

func init() {
	rootCmd.Flags().IntVar(&top, "top", 0, "show only the best N ranked paths (0 shows all)")
	rootCmd.Flags().IntVar(&maxPaths, "max-paths", decision.DefaultLimits().MaxPaths, "refuse trees that would produce more paths")
	rootCmd.Flags().BoolVar(&asJSON, "json", false, "print the evaluation as JSON")
}

func run(ctx context.Context, out io.Writer, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if top < 0 {
		return errors.New("--top must not be negative")
	}

	snap, err := treefile.ParseFile(path)
	if err != nil {
		return err
	}

	limits := decision.DefaultLimits()
	limits.MaxPaths = maxPaths
	engine := decision.NewEngine(limits, decision.DefaultCostUnits())

	result, err := engine.EvaluateSnapshot(ctx, snap)
	if err != nil {
		var validationErr *decision.ValidationError
		if errors.As(err, &validationErr) {
			printFindings(out, validationErr.Findings)
		}
		return err
	}
	result = result.Top(top)

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printEvaluation(out, snap.Tree, result)
	return nil
}

func printFindings(out io.Writer, findings []models.ValidationFinding) {
	for _, f := range findings {
		style := warningStyle
		if f.IsError() {
			style = errorStyle
		}
		fmt.Fprintf(out, "%s %s\n", style.Render(string(f.Severity)+" "+f.Code+":"), f.Message)
	}
}

func printEvaluation(out io.Writer, tree *models.DecisionTree, result *models.TreeEvaluation) {
	fmt.Fprintln(out, titleStyle.Render(tree.Title))
	fmt.Fprintf(out, "%s evaluated\n\n", countNoun(result.PathCount, "path"))

	if len(result.Warnings) > 0 {
		printFindings(out, result.Warnings)
		fmt.Fprintln(out)
	}

	if result.Recommended != nil {
		fmt.Fprintf(out, "%s %s (score %.2f)\n\n",
			bestStyle.Render("Recommended:"),
			strings.Join(result.Recommended.PathDescription, " > "),
			result.Recommended.Score)
	}

	fmt.Fprintln(out, rankedTable(result.Ranked))
}

func rankedTable(ranked []models.PathResult) string {
	rows := make([][]string, 0, len(ranked))
	for i, p := range ranked {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strings.Join(p.PathDescription, " > "),
			fmt.Sprintf("%.2f", p.Score),
			fmt.Sprintf("%.1f%%", p.ProbabilityPercent),
			p.FormattedCost,
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("#", "PATH", "SCORE", "PROBABILITY", "COST").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == 0:
				return bestStyle.Padding(0, 1)
			default:
				return cellStyle
			}
		}).
		String()
}

// countNoun renders "1 path" or "3 paths".
func countNoun(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + inflection.Plural(noun)
}
