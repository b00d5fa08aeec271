package main

import (
	"log"

	"github.com/spf13/cobra"

	"blogicum/cmd/catalog"
	"blogicum/cmd/migrate"
	"blogicum/cmd/serve"
	"blogicum/config"
)

func main() {
	cfg := config.Load()

	root := &cobra.Command{
		Use:           "blogicum",
		Short:         "Blogicum - a small blogging platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serve.NewServeCommand(cfg),
		migrate.NewMigrateCommand(cfg),
		catalog.NewCategoryCommand(cfg),
		catalog.NewLocationCommand(cfg),
	)

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
