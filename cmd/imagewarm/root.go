package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eringen/imagewarm"
)

// cli carries state shared by the subcommands.
type cli struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "imagewarm",
		Short: "Serve templ pages with pre-generated image placeholders",
		Long: `imagewarm renders every static page once at startup, collects the images the
pages reference, and generates their blur placeholders before serving traffic.

Configuration is read from flags, IMAGEWARM_* environment variables (a .env
file is loaded first) and .imagewarm.yml, in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is .imagewarm.yml, can also use IMAGEWARM_CONFIG_FILE env var)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("assets", "public", "source image directory")
	root.PersistentFlags().String("database", "data/variants.db", `variant store path, "-" to disable`)
	for _, name := range []string{"log-level", "assets", "database"} {
		_ = c.v.BindPFlag(name, root.PersistentFlags().Lookup(name))
	}

	root.AddCommand(
		c.serveCmd(),
		c.encodeCmd(),
		c.decodeCmd(),
		c.placeholderCmd(),
		c.purgeCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) initConfig() error {
	// A missing .env is fine; the process environment is used as is.
	_ = godotenv.Load()

	switch {
	case c.cfgFile != "":
		c.v.SetConfigFile(c.cfgFile)
	case os.Getenv("IMAGEWARM_CONFIG_FILE") != "":
		c.v.SetConfigFile(os.Getenv("IMAGEWARM_CONFIG_FILE"))
	default:
		c.v.AddConfigPath(".")
		c.v.SetConfigType("yaml")
		c.v.SetConfigName(".imagewarm")
	}
	c.v.SetEnvPrefix("IMAGEWARM")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if c.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (c *cli) logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.v.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// siteConfig builds the app configuration from flags, environment and file.
func (c *cli) siteConfig() imagewarm.Config {
	return imagewarm.Config{
		URL:              c.v.GetString("url"),
		Addr:             c.v.GetString("addr"),
		AssetDir:         c.v.GetString("assets"),
		DatabasePath:     c.v.GetString("database"),
		CrawlWorkers:     c.v.GetInt("workers"),
		PlaceholderJobs:  c.v.GetInt("jobs"),
		TransformRetries: c.v.GetInt("retries"),
		TransformTimeout: c.v.GetDuration("timeout"),
		TransformLimit:   c.v.GetInt("limit"),
		TransformWindow:  c.v.GetDuration("window"),
	}
}
