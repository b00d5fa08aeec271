package migrate

import (
	"github.com/spf13/cobra"

	"blogicum/config"
	"blogicum/database"
)

func NewMigrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := cfg.ValidateDatabase(); err != nil {
				return err
			}
			db, err := database.Open(cfg)
			if err != nil {
				return err
			}
			return database.RunMigrations(db)
		},
	}
}
