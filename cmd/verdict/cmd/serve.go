package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/verdict/internal/core/api"
	"github.com/solatis/verdict/internal/core/auth"
	"github.com/solatis/verdict/internal/core/config"
	"github.com/solatis/verdict/internal/core/db"
	"github.com/solatis/verdict/internal/core/metrics"
	"github.com/solatis/verdict/internal/core/server"
	"github.com/solatis/verdict/internal/rulefile"
	"github.com/solatis/verdict/internal/rules"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC decision service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().String("rules", "", "rule file (YAML or JSON), reloaded on change; defaults to the database")
	serveCmd.Flags().Bool("insecure", false, "serve without API key authentication")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("rules") {
		cfg.RulesFile, _ = cmd.Flags().GetString("rules")
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	insecure, _ := cmd.Flags().GetBool("insecure")

	var (
		database *sqlx.DB
		queries  *db.Queries
	)
	if cfg.DatabaseURL != "" {
		database, queries, err = openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := db.RequireMigrations(ctx, database); err != nil {
			return err
		}
	}

	collector := metrics.NewCollector(nil)
	loadRules := ruleLoader(cfg, database, queries)
	reg, err := loadRules(ctx)
	collector.RecordReload(registryLen(reg), err)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	service, err := api.NewDecisionService(reg, logger,
		api.WithMetrics(collector),
		api.WithRequestTimeout(cfg.RequestTimeout),
		api.WithMaxGraphDepth(cfg.MaxGraphDepth),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	authenticator, err := newAuthenticator(queries, insecure)
	if err != nil {
		return err
	}

	grpcServer, err := server.NewGRPCServer(cfg, service, authenticator, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errChan := make(chan error, 3)

	if cfg.RulesFile != "" {
		watcher, err := rulefile.NewWatcher(cfg.RulesFile, cfg.ReloadDebounce, logger)
		if err != nil {
			return err
		}
		go func() {
			errChan <- watcher.Watch(ctx, func() error {
				reg, err := loadRules(ctx)
				collector.RecordReload(registryLen(reg), err)
				if err != nil {
					return err
				}
				service.SetRegistry(reg)
				return nil
			})
		}()
	}

	var metricsServer *server.MetricsServer
	if cfg.MetricsAddr != "" {
		metricsServer = server.NewMetricsServer(cfg.MetricsAddr, collector.Handler(), logger)
		go func() {
			errChan <- metricsServer.Start()
		}()
	}

	logger.Info("starting verdict decision service", "version", Version, "addr", cfg.Addr(), "rules", reg.Len())
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+5*time.Second)
	defer cancel()
	var shutdownErr error
	if metricsServer != nil {
		shutdownErr = metricsServer.Shutdown(shutdownCtx)
	}
	return errors.Join(shutdownErr, grpcServer.Shutdown(shutdownCtx))
}

// ruleLoader returns the rule source for the service: the rule file when configured,
// otherwise the database.
func ruleLoader(cfg *config.ServiceConfig, database *sqlx.DB, queries *db.Queries) func(context.Context) (*rules.Registry, error) {
	if cfg.RulesFile != "" {
		return func(context.Context) (*rules.Registry, error) {
			return rulefile.LoadRegistry(cfg.RulesFile)
		}
	}
	return func(ctx context.Context) (*rules.Registry, error) {
		if database == nil {
			return nil, fmt.Errorf("no rule source: set rules.file or --db-url")
		}
		return db.NewRuleStore(database, queries).LoadRegistry(ctx)
	}
}

func newAuthenticator(queries *db.Queries, insecure bool) (*auth.Authenticator, error) {
	if insecure {
		return nil, nil
	}
	if queries == nil {
		return nil, fmt.Errorf("API key authentication needs --db-url (or pass --insecure)")
	}
	secrets, err := config.HMACSecrets()
	if err != nil {
		return nil, fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return nil, fmt.Errorf("no HMAC secrets configured (set VD_HMAC_SECRET environment variable)")
	}
	return auth.NewAuthenticator(secrets, queries), nil
}

func registryLen(reg *rules.Registry) int {
	if reg == nil {
		return 0
	}
	return reg.Len()
}
