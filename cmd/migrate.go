package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"example.com/premeepro/production/config"
	"example.com/premeepro/production/internal/db"
	"example.com/premeepro/production/internal/metrics"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/service"
)

var seedDefault bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the database schema",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&seedDefault, "seed", false, "create the starter default template when none exists")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	gdb, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB(gdb)

	if err := db.Migrate(gdb); err != nil {
		return err
	}
	log.Info().Msg("Database migrated")

	if seedDefault {
		return seedDefaultTemplate(cmd.Context(), store)
	}
	return nil
}

func closeDB(gdb *gorm.DB) {
	if err := db.Close(gdb); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}

// openStore connects to the database for the one-shot commands
func openStore(cfg config.Config) (*gorm.DB, *repository.Store, error) {
	gdb, err := db.Connect(cfg.DB, metrics.NewMetrics())
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to database")
	}
	return gdb, repository.NewStore(gdb), nil
}

func seedDefaultTemplate(ctx context.Context, store *repository.Store) error {
	defaults, err := store.Templates.GetDefaults(ctx)
	if err != nil {
		return err
	}
	if len(defaults) > 0 {
		log.Info().Str("template", defaults[0].Name).Msg("Default template already exists")
		return nil
	}

	t, err := service.NewTemplateService(store, store.Repositories).CreateDefault(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("template_id", t.ID.String()).Int("steps", len(t.Steps)).Msg("Created default template")
	return nil
}
