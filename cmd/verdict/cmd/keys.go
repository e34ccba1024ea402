package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/solatis/verdict/internal/core/auth"
	"github.com/solatis/verdict/internal/core/config"
	"github.com/solatis/verdict/internal/core/db"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys for the decision service",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Issue a new API key; the key is printed once and never stored",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysCreate,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke ID",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE:  runKeysList,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysRevokeCmd, keysListCmd)
	keysCreateCmd.Flags().String("secret-id", "", "HMAC secret to bind the key to (required when several are configured)")
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	secretID, _ := cmd.Flags().GetString("secret-id")
	secretID, err = pickSecret(secrets, secretID)
	if err != nil {
		return err
	}

	key, err := auth.GenerateAPIKey(secretID)
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

	id := uuid.Must(uuid.NewV7()).String()
	if err := db.InsertAPIKey(ctx, queries, id, args[0], secretID, auth.ComputeHMAC(secrets[secretID], key)); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "id:  %s\nkey: %s\n", id, key)
	return nil
}

// pickSecret resolves the secret id to issue under: the requested one, or the only one.
func pickSecret(secrets map[string][]byte, requested string) (string, error) {
	if len(secrets) == 0 {
		return "", fmt.Errorf("no HMAC secrets configured (set VD_HMAC_SECRET environment variable)")
	}
	if requested != "" {
		if _, ok := secrets[requested]; !ok {
			return "", fmt.Errorf("secret id %s not configured", requested)
		}
		return requested, nil
	}
	if len(secrets) > 1 {
		ids := make([]string, 0, len(secrets))
		for id := range secrets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return "", fmt.Errorf("several HMAC secrets configured, choose one with --secret-id: %v", ids)
	}
	for id := range secrets {
		return id, nil
	}
	return "", nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
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

	return db.RevokeAPIKey(ctx, queries, args[0])
}

func runKeysList(cmd *cobra.Command, args []string) error {
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

	keys, err := db.ListAPIKeys(ctx, queries)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED\tLAST USED\tSTATUS")
	for _, k := range keys {
		lastUsed := "-"
		if k.LastUsedAt.Valid {
			lastUsed = k.LastUsedAt.Time.Format(time.RFC3339)
		}
		state := "active"
		if k.RevokedAt.Valid {
			state = "revoked"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, k.CreatedAt.Format(time.RFC3339), lastUsed, state)
	}
	return w.Flush()
}
