package config

import (
	"errors"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	Domain        string
	DBDriver      string
	SQLitePath    string
	DatabaseURL   string
	SessionSecret string
	SessionSecure bool
	PageSize      int
	MediaRoot     string
	MediaURL      string
	GinMode       string
}

// Load reads an optional .env file and then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment only")
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("DOMAIN", "http://localhost:8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("SQLITE_DB", "blogicum.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SESSION_SECURE", false)
	v.SetDefault("PAGE_SIZE", 10)
	v.SetDefault("MEDIA_ROOT", "media")
	v.SetDefault("MEDIA_URL", "/media/")
	v.SetDefault("GIN_MODE", "")
	v.AutomaticEnv()
	return v
}

func FromViper(v *viper.Viper) *Config {
	return &Config{
		Port:          v.GetString("PORT"),
		Domain:        v.GetString("DOMAIN"),
		DBDriver:      strings.ToLower(v.GetString("DB_DRIVER")),
		SQLitePath:    v.GetString("SQLITE_DB"),
		DatabaseURL:   v.GetString("DATABASE_URL"),
		SessionSecret: v.GetString("SESSION_SECRET"),
		SessionSecure: v.GetBool("SESSION_SECURE"),
		PageSize:      v.GetInt("PAGE_SIZE"),
		MediaRoot:     v.GetString("MEDIA_ROOT"),
		MediaURL:      v.GetString("MEDIA_URL"),
		GinMode:       v.GetString("GIN_MODE"),
	}
}

// ValidateServe checks what the web server needs on top of database settings.
func (c *Config) ValidateServe() error {
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET environment variable not set")
	}
	return c.ValidateDatabase()
}

func (c *Config) ValidateDatabase() error {
	switch c.DBDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_DB must be set for the sqlite driver")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be set for the postgres driver")
		}
	default:
		return errors.New("DB_DRIVER must be sqlite or postgres, got " + c.DBDriver)
	}
	return nil
}
