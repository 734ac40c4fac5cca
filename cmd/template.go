package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/premeepro/production/internal/service"
)

var exportPath string

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Import, export and seed step templates",
}

var templateImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create the templates of a YAML template file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "failed to read template file")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gdb, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeDB(gdb)

		created, err := service.NewTemplateService(store, store.Repositories).Import(cmd.Context(), data)
		for _, t := range created {
			log.Info().Str("template_id", t.ID.String()).Str("name", t.Name).Int("steps", len(t.Steps)).Msg("Imported template")
		}
		return err
	},
}

var templateExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every template as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gdb, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeDB(gdb)

		data, err := service.NewTemplateService(store, store.Repositories).Export(cmd.Context())
		if err != nil {
			return err
		}
		if exportPath == "" {
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return err
		}
		return errors.Wrap(os.WriteFile(exportPath, data, 0o644), "failed to write template file")
	},
}

var templateSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the starter default template when none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gdb, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeDB(gdb)

		return seedDefaultTemplate(cmd.Context(), store)
	},
}

func init() {
	templateExportCmd.Flags().StringVarP(&exportPath, "out", "o", "", "file to write; stdout when empty")

	templateCmd.AddCommand(templateImportCmd, templateExportCmd, templateSeedCmd)
	rootCmd.AddCommand(templateCmd)
}
