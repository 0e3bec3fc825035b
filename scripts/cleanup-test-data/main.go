// cleanup-test-data removes test-like decision trees from a project.
//
// Usage: go run ./scripts/cleanup-test-data [flags] <project-id>
//
// A tree is test-like when its title matches one of testTitlePatterns
// (case-insensitive). Nodes and options go with their tree through the
// ON DELETE CASCADE foreign keys.
//
// The database connection comes from config.yaml and PG* environment
// variables, exactly as for the server.
//
// Flags:
//
//	--config   Config file to read (default: config.yaml)
//	--dry-run  List matching trees without deleting them (default: true)
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-decisions/pkg/config"
	"github.com/ekaya-inc/ekaya-decisions/pkg/database"
	"github.com/ekaya-inc/ekaya-decisions/pkg/logging"
)

// testTitlePatterns are PostgreSQL ~* patterns.
var testTitlePatterns = []string{
	`^test`,
	`test$`,
	`^debug`,
	`^dummy`,
	`^sample`,
	`^example`,
	`\d{4}$`, // year-like suffix, e.g. "Tree2026"
}

var (
	configPath string
	dryRun     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "cleanup-test-data <project-id>",
	Short:        "Delete test-like decision trees from a project",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid project ID %q: %w", args[0], err)
		}

		cfg, err := config.LoadFile(configPath, "cleanup")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: 1,
		})
		if err != nil {
			return fmt.Errorf("connect to database: %s", logging.SanitizeError(err))
		}
		defer db.Close()

		scope, err := db.WithTenant(ctx, projectID)
		if err != nil {
			return err
		}
		defer scope.Close()

		_, err = cleanupTestTrees(ctx, scope.Conn.Conn(), cmd.OutOrStdout(), projectID, dryRun)
		return err
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "config.yaml", "Config file to read")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", true, "List matching trees without deleting them")
}

// cleanupTestTrees lists or deletes projectID's test-like trees and returns how many matched.
func cleanupTestTrees(ctx context.Context, conn *pgx.Conn, out io.Writer, projectID uuid.UUID, dryRun bool) (int, error) {
	query := `
		DELETE FROM engine_decision_trees
		WHERE project_id = $1 AND title ~* ANY($2)
		RETURNING id, title, 0`
	if dryRun {
		query = `
			SELECT t.id, t.title, count(n.id)
			FROM engine_decision_trees t
			LEFT JOIN engine_decision_nodes n ON n.tree_id = t.id
			WHERE t.project_id = $1 AND t.title ~* ANY($2)
			GROUP BY t.id, t.title, t.created_at
			ORDER BY t.created_at`
		fmt.Fprintln(out, "DRY RUN - no changes will be made (use --dry-run=false to delete)")
	}

	rows, err := conn.Query(ctx, query, projectID, testTitlePatterns)
	if err != nil {
		return 0, fmt.Errorf("query test trees: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id uuid.UUID
		var title string
		var nodes int
		if err := rows.Scan(&id, &title, &nodes); err != nil {
			return count, fmt.Errorf("scan tree: %w", err)
		}
		count++
		if dryRun {
			fmt.Fprintf(out, "  %s %q (%d nodes)\n", id, logging.TruncateString(title, 60), nodes)
		} else {
			fmt.Fprintf(out, "  deleted %s %q\n", id, logging.TruncateString(title, 60))
		}
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("read test trees: %w", err)
	}

	verb := "deleted"
	if dryRun {
		verb = "would be deleted"
	}
	fmt.Fprintf(out, "\nTrees %s: %d\n", verb, count)
	return count, nil
}
