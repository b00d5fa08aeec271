package catalog

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"blogicum/catalog"
	"blogicum/config"
	"blogicum/database"
)

const (
	titleFlag       = "title"
	descriptionFlag = "description"
	slugFlag        = "slug"
	nameFlag        = "name"
)

var categoryFlags = map[string]cobraflags.Flag{
	titleFlag: &cobraflags.StringFlag{
		Name:  titleFlag,
		Value: "",
		Usage: "Category title (required)",
	},
	descriptionFlag: &cobraflags.StringFlag{
		Name:  descriptionFlag,
		Value: "",
		Usage: "Category description, Markdown allowed (required)",
	},
	slugFlag: &cobraflags.StringFlag{
		Name:  slugFlag,
		Value: "",
		Usage: "URL identifier; generated from the title when empty",
	},
}

var locationFlags = map[string]cobraflags.Flag{
	nameFlag: &cobraflags.StringFlag{
		Name:  nameFlag,
		Value: "",
		Usage: "Location name (required)",
	},
}

// serviceFunc opens the catalog lazily so --help works without a database.
type serviceFunc func() (*catalog.Service, error)

func openService(cfg *config.Config) serviceFunc {
	return func() (*catalog.Service, error) {
		if err := cfg.ValidateDatabase(); err != nil {
			return nil, err
		}
		db, err := database.Open(cfg)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(db); err != nil {
			return nil, err
		}
		return catalog.NewService(db), nil
	}
}

func NewCategoryCommand(cfg *config.Config) *cobra.Command {
	return newCategoryCommand(openService(cfg))
}

func NewLocationCommand(cfg *config.Config) *cobra.Command {
	return newLocationCommand(openService(cfg))
}

func newCategoryCommand(open serviceFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage post categories",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a published category",
		RunE: func(c *cobra.Command, _ []string) error {
			service, err := open()
			if err != nil {
				return err
			}
			category, err := service.CreateCategory(context.Background(),
				categoryFlags[titleFlag].GetString(),
				categoryFlags[descriptionFlag].GetString(),
				categoryFlags[slugFlag].GetString(),
			)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "created category %s (id %d)\n", category.Slug, category.ID)
			return nil
		},
	}
	cobraflags.RegisterMap(create, categoryFlags)

	list := &cobra.Command{
		Use:   "list",
		Short: "List all categories",
		RunE: func(c *cobra.Command, _ []string) error {
			service, err := open()
			if err != nil {
				return err
			}
			categories, err := service.ListCategories(context.Background())
			if err != nil {
				return err
			}
			for _, category := range categories {
				printRow(c.OutOrStdout(), category.ID, category.Slug, category.Title, category.IsPublished)
			}
			return nil
		},
	}

	cmd.AddCommand(
		create,
		list,
		categoryAction(open, "publish", "Show a category and its posts", func(s *catalog.Service, slug string) error {
			return s.SetCategoryPublished(context.Background(), slug, true)
		}),
		categoryAction(open, "hide", "Hide a category and its posts", func(s *catalog.Service, slug string) error {
			return s.SetCategoryPublished(context.Background(), slug, false)
		}),
		categoryAction(open, "delete", "Delete a category; its posts lose their category", func(s *catalog.Service, slug string) error {
			return s.DeleteCategory(context.Background(), slug)
		}),
	)
	return cmd
}

func categoryAction(open serviceFunc, use, short string, action func(*catalog.Service, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <slug>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			service, err := open()
			if err != nil {
				return err
			}
			if err := action(service, args[0]); err != nil {
				return fmt.Errorf("category %s: %w", args[0], err)
			}
			fmt.Fprintf(c.OutOrStdout(), "%s: %s\n", use, args[0])
			return nil
		},
	}
}

func newLocationCommand(open serviceFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Manage post locations",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a published location",
		RunE: func(c *cobra.Command, _ []string) error {
			service, err := open()
			if err != nil {
				return err
			}
			location, err := service.CreateLocation(context.Background(), locationFlags[nameFlag].GetString())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "created location %s (id %d)\n", location.Name, location.ID)
			return nil
		},
	}
	cobraflags.RegisterMap(create, locationFlags)

	list := &cobra.Command{
		Use:   "list",
		Short: "List all locations",
		RunE: func(c *cobra.Command, _ []string) error {
			service, err := open()
			if err != nil {
				return err
			}
			locations, err := service.ListLocations(context.Background())
			if err != nil {
				return err
			}
			for _, location := range locations {
				printRow(c.OutOrStdout(), location.ID, "", location.Name, location.IsPublished)
			}
			return nil
		},
	}

	cmd.AddCommand(
		create,
		list,
		locationAction(open, "publish", "Show a location", func(s *catalog.Service, id uint) error {
			return s.SetLocationPublished(context.Background(), id, true)
		}),
		locationAction(open, "hide", "Hide a location and its posts", func(s *catalog.Service, id uint) error {
			return s.SetLocationPublished(context.Background(), id, false)
		}),
		locationAction(open, "delete", "Delete a location; its posts lose their location", func(s *catalog.Service, id uint) error {
			return s.DeleteLocation(context.Background(), id)
		}),
	)
	return cmd
}

func locationAction(open serviceFunc, use, short string, action func(*catalog.Service, uint) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid location id %q", args[0])
			}
			service, err := open()
			if err != nil {
				return err
			}
			if err := action(service, uint(id)); err != nil {
				return fmt.Errorf("location %d: %w", id, err)
			}
			fmt.Fprintf(c.OutOrStdout(), "%s: %d\n", use, id)
			return nil
		},
	}
}

func printRow(w io.Writer, id uint, slug, title string, published bool) {
	state := "hidden"
	if published {
		state = "published"
	}
	if slug != "" {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", id, slug, title, state)
		return
	}
	fmt.Fprintf(w, "%d\t%s\t%s\n", id, title, state)
}
