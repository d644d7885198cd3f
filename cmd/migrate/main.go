package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"zapgate/internal/pkg/logger"
	"zapgate/internal/platform/config"
	"zapgate/internal/platform/database"
	"zapgate/migrations"
)

func main() {
	var cfgPath, dir string

	root := &cobra.Command{
		Use:   "zapgate-migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.Logging, "migrate")

			db, err := database.NewDB(cfg.Database)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			var source fs.FS = migrations.FS
			if dir != "" {
				source = os.DirFS(dir)
			}
			if err := database.Migrate(db, source); err != nil {
				return err
			}

			log.Info().Str("database", cfg.Database.URL).Msg("migrations up to date")
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "configs/config.yaml", "path to YAML config file")
	root.Flags().StringVar(&dir, "dir", "", "read migrations from this directory instead of the embedded set")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
