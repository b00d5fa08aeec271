package serve

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"blogicum/accounts"
	"blogicum/blog"
	"blogicum/common"
	"blogicum/config"
	"blogicum/content"
	"blogicum/database"
	"blogicum/feed"
	"blogicum/media"
	"blogicum/pages"
	"blogicum/policy"
	"blogicum/views"
)

const portFlag = "port"

var serveFlags = map[string]cobraflags.Flag{
	portFlag: &cobraflags.StringFlag{
		Name:  portFlag,
		Value: "",
		Usage: "Port to listen on (overrides PORT)",
	},
}

func NewServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the blog web server",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(cfg)
		},
	}
	cobraflags.RegisterMap(cmd, serveFlags)
	return cmd
}

func run(cfg *config.Config) error {
	if port := serveFlags[portFlag].GetString(); port != "" {
		cfg.Port = port
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	if err := database.RunMigrations(db); err != nil {
		return err
	}

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	router := NewRouter(cfg, db)

	log.Printf("Starting server on port %s...", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// NewRouter wires every module onto one engine.
func NewRouter(cfg *config.Config, db *gorm.DB) *gin.Engine {
	router := gin.New()
	router.Use(common.RequestID(), common.Logger(), pages.Recovery())

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 14,
		HttpOnly: true,
		Secure:   cfg.SessionSecure,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions("blogicum-session", store))

	accountsModule := accounts.NewAccountsModule(db)
	router.Use(accountsModule.LoadViewer)

	router.SetHTMLTemplate(views.Templates(cfg.MediaURL))

	storage := media.NewLocalStorage(cfg.MediaRoot, cfg.MediaURL)
	router.Static(strings.TrimSuffix(cfg.MediaURL, "/"), storage.Root())

	feedService := feed.NewService(db, cfg.PageSize)
	contentService := content.NewService(db, storage, policy.AuthorOnly{})

	accountsModule.RegisterRoutes(router)
	pages.NewPagesModule(db, cfg.Domain).RegisterRoutes(router)
	blog.NewBlogModule(feedService, contentService).RegisterRoutes(router)

	return router
}
