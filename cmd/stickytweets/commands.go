package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"stickytweets/internal/cmdlog"
	"stickytweets/internal/config"
	"stickytweets/internal/jobs"
	"stickytweets/internal/metrics"
	"stickytweets/internal/model"
	"stickytweets/internal/util"
)

type initCmd struct {
	Force bool `long:"force" description:"Overwrite an existing config"`
}

func (c *initCmd) Execute(args []string) error {
	return cmdlog.Run("init", func() error {
		if _, err := os.Stat(opts.Config); err == nil && !c.Force {
			return fmt.Errorf("%s exists; use --force to overwrite", opts.Config)
		}
		if err := config.Save(opts.Config, config.Default()); err != nil {
			return err
		}
		fmt.Println("Config written to:", opts.Config)
		return nil
	})
}

type searchCmd struct {
	Host  string `long:"host" description:"Host label for metrics and logs (default from config)"`
	Limit int    `long:"limit" description:"Row cap (default from config)"`
	Args  struct {
		Terms []string `positional-arg-name:"term"`
	} `positional-args:"yes"`
}

func (c *searchCmd) Execute(args []string) error {
	return cmdlog.Run("search", func() error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		h, err := e.harvester(c.Limit)
		if err != nil {
			return err
		}
		terms := c.Args.Terms
		if len(terms) == 0 {
			terms = e.cfg.Search.Terms
		}
		host := c.Host
		if host == "" {
			host = e.cfg.Schedule.Host
		}
		res, err := jobs.RunTask(appCtx, h, host, terms)
		fmt.Printf("pages=%d seen=%d stored=%d skipped=%d removed=%d\n",
			res.Pages, res.Seen, res.Stored(), res.Skipped, res.Removed)
		return err
	})
}

type dedupeCmd struct{}

func (c *dedupeCmd) Execute(args []string) error {
	return cmdlog.Run("dedupe", func() error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		w, err := e.writer(0)
		if err != nil {
			return err
		}
		n, err := w.Deduplicate(appCtx)
		if err != nil {
			return err
		}
		metrics.DuplicatesRemoved.Add(float64(n))
		fmt.Printf("removed %d duplicate rows\n", n)
		return nil
	})
}

type listCmd struct {
	All  bool   `long:"all" description:"Include hidden and unlocated rows"`
	From string `long:"from" description:"Only tweets at or after this RFC3339 time"`
	To   string `long:"to" description:"Only tweets before this RFC3339 time"`
}

func (c *listCmd) Execute(args []string) error {
	return cmdlog.Run("list", func() error {
		from, err := parseBound(c.From)
		if err != nil {
			return err
		}
		to, err := parseBound(c.To)
		if err != nil {
			return err
		}
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		var rows []model.StickyTweet
		if c.All {
			rows, err = e.db.List(appCtx)
		} else {
			rows, err = e.db.ListVisible(appCtx, from, to)
		}
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTIME\tUSER\tLOCATION\tVISIBLE\tTWEET")
		for _, t := range rows {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%s\n", t.ID, formatTime(t.Time), t.TwitterName, formatPoint(t.Geom), t.Visible, util.Ellipsize(t.Tweet, 60))
		}
		return tw.Flush()
	})
}

type visibilityCmd struct {
	name    string
	visible bool
	Args    struct {
		ID int64 `positional-arg-name:"id" required:"yes"`
	} `positional-args:"yes" required:"yes"`
}

func (c *visibilityCmd) Execute(args []string) error {
	return cmdlog.Run(c.name, func() error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		return e.db.SetVisible(appCtx, c.Args.ID, c.visible)
	})
}

type watchCmd struct {
	Host string `long:"host" description:"Host label for metrics and logs (default from config)"`
}

func (c *watchCmd) Execute(args []string) error {
	return cmdlog.Run("watch", func() error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		h, err := e.harvester(0)
		if err != nil {
			return err
		}
		host := c.Host
		if host == "" {
			host = e.cfg.Schedule.Host
		}
		g, ctx := errgroup.WithContext(appCtx)
		g.Go(func() error { return metrics.Serve(ctx, e.cfg.Metrics.Addr) })
		g.Go(func() error { return jobs.Watch(ctx, h, e.cfg.Schedule.Cron, host, e.cfg.Search.Terms) })
		err = g.Wait()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad time %q: %w", s, err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatPoint(p *model.Point) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(p.Lon, 'f', 5, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 5, 64)
}
