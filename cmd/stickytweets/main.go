package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"stickytweets/internal/config"
	"stickytweets/internal/ingest"
	"stickytweets/internal/store/sqlitedb"
	"stickytweets/internal/tweets"
	"stickytweets/internal/twitter"
)

// Options are shared by every command.
type Options struct {
	Config string `short:"c" long:"config" env:"STICKYTWEETS_CONFIG" default:"./stickytweets.yaml" description:"Path to the YAML config"`
}

var (
	opts   Options
	appCtx = context.Background()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	appCtx = ctx

	parser := flags.NewParser(&opts, flags.Default)
	parser.Name = "stickytweets"
	parser.ShortDescription = "Geotagged tweet harvester"
	mustAdd(parser, "init", "Write a default config", "Write the default configuration to --config.", &initCmd{})
	mustAdd(parser, "search", "Run one ingestion pass", "Search the configured area for terms and store every geotagged hit.", &searchCmd{})
	mustAdd(parser, "dedupe", "Remove duplicate statuses", "Keep only the newest row per status id.", &dedupeCmd{})
	mustAdd(parser, "list", "Print stored tweets", "Print visible tweets with a location, newest first.", &listCmd{})
	mustAdd(parser, "hide", "Hide a tweet", "Mark a stored tweet as not visible.", &visibilityCmd{name: "hide", visible: false})
	mustAdd(parser, "show", "Show a tweet", "Mark a stored tweet as visible again.", &visibilityCmd{name: "show", visible: true})
	mustAdd(parser, "watch", "Ingest on a schedule", "Run ingestion on the configured cron schedule and serve metrics.", &watchCmd{})

	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}

func mustAdd(p *flags.Parser, name, short, long string, data any) {
	if _, err := p.AddCommand(name, short, long, data); err != nil {
		panic(err)
	}
}

// env bundles what most commands need.
type env struct {
	cfg config.Config
	db  *sqlitedb.DB
}

func openEnv() (*env, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := sqlitedb.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Storage.DBPath, err)
	}
	return &env{cfg: cfg, db: db}, nil
}

func (e *env) Close() error { return e.db.Close() }

func (e *env) writer(limit int) (*tweets.Writer, error) {
	if limit <= 0 {
		limit = e.cfg.Storage.Limit
	}
	return tweets.NewWriter(e.db, limit)
}

func (e *env) harvester(limit int) (*ingest.Harvester, error) {
	w, err := e.writer(limit)
	if err != nil {
		return nil, err
	}
	client := twitter.NewClient(e.cfg.TwitterCredentials(), e.cfg.TwitterOptions())
	return ingest.NewHarvester(client, w, e.cfg.Search.Geocode()), nil
}
