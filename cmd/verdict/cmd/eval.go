package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/verdict/internal/core/db"
	"github.com/solatis/verdict/internal/rulefile"
	"github.com/solatis/verdict/internal/rules"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate rules against a JSON context and print the records as JSON lines",
	Long: `Evaluates the rules from --rules (or the database when omitted) against the JSON
context read from --context ("-" for stdin). Each record is printed on its own line.`,
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().String("rules", "", "rule file (YAML or JSON); defaults to rules.file, then the database")
	evalCmd.Flags().String("context", "-", "context JSON file, - for stdin")
	evalCmd.Flags().String("at", "", "evaluation time (RFC3339); defaults to now")
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rulesFile, _ := cmd.Flags().GetString("rules")
	if rulesFile == "" {
		rulesFile = cfg.RulesFile
	}

	var reg *rules.Registry
	if rulesFile != "" {
		reg, err = rulefile.LoadRegistry(rulesFile)
	} else {
		database, queries, openErr := openDatabase(ctx, cfg)
		if openErr != nil {
			return openErr
		}
		defer database.Close()
		reg, err = db.NewRuleStore(database, queries).LoadRegistry(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	contextPath, _ := cmd.Flags().GetString("context")
	evalCtx, err := readContext(cmd.InOrStdin(), contextPath)
	if err != nil {
		return err
	}

	opts := []rules.Option{
		rules.WithLogger(logger),
		rules.WithMaxGraphDepth(cfg.MaxGraphDepth),
	}
	if at, _ := cmd.Flags().GetString("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		opts = append(opts, rules.WithClock(func() time.Time { return t }))
	}

	engine, err := rules.NewEngineWithRegistry(reg, evalCtx, opts...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for rec, err := range engine.EvaluateContext(ctx) {
		if err != nil {
			return fmt.Errorf("evaluation failed: %w", err)
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// readContext decodes the evaluation context from path, or from stdin for "-".
func readContext(stdin io.Reader, path string) (any, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open context: %w", err)
		}
		defer f.Close()
		r = f
	}

	var v any
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid context JSON: %w", err)
	}
	return v, nil
}
