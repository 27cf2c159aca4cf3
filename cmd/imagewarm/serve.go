package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eringen/imagewarm"
)

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Warm the placeholder cache and serve the site",
		Long: `Serve renders the Markdown pages under --pages, one page per file
(index.md is "/", about.md is "/about"). Every page is introspected once at
startup and the blur placeholders of its images are generated before the
server accepts traffic. Files are also reachable under /raw/:name, a dynamic
route that is served but never introspected.`,
		RunE: c.runServe,
	}

	f := cmd.Flags()
	f.String("addr", ":3000", "listen address")
	f.String("url", "http://localhost:3000", "canonical site URL")
	f.String("pages", "pages", "directory of Markdown pages")
	f.Int("workers", 4, "concurrent introspection renders")
	f.Int("jobs", 4, "concurrent placeholder transforms")
	f.Int("retries", 2, "retries per placeholder")
	f.Duration("timeout", 30*time.Second, "timeout per placeholder")
	f.Int("limit", 60, "on-demand transforms per client per window")
	f.Duration("window", time.Minute, "rate limit window")
	for _, name := range []string{"addr", "url", "pages", "workers", "jobs", "retries", "timeout", "limit", "window"} {
		_ = c.v.BindPFlag(name, f.Lookup(name))
	}
	return cmd
}

func (c *cli) runServe(cmd *cobra.Command, args []string) error {
	logger := c.logger()

	site, err := loadSite(c.v.GetString("pages"))
	if err != nil {
		return err
	}

	app := imagewarm.New(c.siteConfig(), imagewarm.WithLogger(logger))
	defer app.Close()
	site.register(app)
	logger.Info("loaded pages", "dir", c.v.GetString("pages"), "pages", len(site.pages))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return app.Start(ctx)
}
