package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/verdict/internal/core/db"
	"github.com/solatis/verdict/internal/rulefile"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage stored rules",
}

var rulesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace the stored rules with the rules in a YAML or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesImport,
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the stored rules as JSON",
	RunE:  runRulesExport,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesImportCmd, rulesExportCmd)
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	defs, err := rulefile.Load(args[0])
	if err != nil {
		return err
	}

	database, queries, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := db.RequireMigrations(ctx, database); err != nil {
		return err
	}

	n, err := db.NewRuleStore(database, queries).ImportRules(ctx, defs)
	if err != nil {
		return fmt.Errorf("failed to import rules: %w", err)
	}
	logger.Info("rules imported", "file", args[0], "rules", n)
	return nil
}

func runRulesExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, queries, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	defs, err := db.NewRuleStore(database, queries).LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"rules": defs})
}
