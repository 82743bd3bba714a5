package main

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/resource-api/internal/config"
	"github.com/phrazzld/resource-api/internal/domain"
	"github.com/phrazzld/resource-api/internal/identity"
	"github.com/phrazzld/resource-api/internal/platform/sqldoc"
	"github.com/phrazzld/resource-api/internal/service/auth"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|reset|status|version]",
		Short:     "Manage the SQL document schema",
		Long:      "Runs goose migrations against the configured postgres or sqlite database. Other storage drivers have no schema.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "reset", "status", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := initializeApp()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != config.DriverPostgres && cfg.Storage.Driver != config.DriverSQLite {
				return fmt.Errorf("storage driver %q has no migrations", cfg.Storage.Driver)
			}

			dialect, err := sqldoc.DialectFor(cfg.Storage.Driver)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			db, err := sqldoc.Open(ctx, dialect, cfg.Storage.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return sqldoc.Migrate(ctx, db, dialect, args[0], log)
		},
	}
}

func newIdentityCmd() *cobra.Command {
	identityCmd := &cobra.Command{Use: "identity", Short: "Identity operations"}

	var email, name, password, role string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an identity, e.g. the first admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := initializeApp()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			registry, err := domain.NewRegistry(domain.DefaultKinds()...)
			if err != nil {
				return err
			}
			adapter, err := openAdapter(ctx, cfg, seedsFor(registry), log)
			if err != nil {
				return err
			}
			defer func() { _ = adapter.Close() }()

			dir, err := identity.NewDirectory(adapter, auth.NewBcrypt(cfg.Auth.BCryptCost), log)
			if err != nil {
				return err
			}
			created, err := dir.Register(ctx, email, name, password, domain.Role(role))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created identity %s (%s, role %s)\n", created.ID, created.Email, created.Role)
			return nil
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	createCmd.Flags().StringVar(&name, "name", "", "Display name")
	createCmd.Flags().StringVar(&password, "password", "", "Password, 8 to 72 characters (required)")
	createCmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "Role: user or admin")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("password")
	identityCmd.AddCommand(createCmd)

	return identityCmd
}

// commandContext bounds one-shot commands so a hung database cannot block forever.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 5*time.Minute)
}
