// Package main is the entry point for the flexstore command line tool.
//
// flexstore stores records as one JSON file per record, grouped by collection
// in a data directory. Configuration is read from a YAML file and overridden
// by CLI flags.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/maruel/flexstore/internal/config"
	"github.com/maruel/flexstore/internal/git"
	"github.com/maruel/flexstore/internal/jsonldb"
	"github.com/maruel/flexstore/internal/record"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "flexstore: %v\n", err)
		os.Exit(1)
	}
}

const usage = `usage: flexstore [flags] <verb> [args]

Verbs:
  demo                             create and commit the demo records
  load <collection> <id>           print a record
  list <collection> [page] [limit] print a page of records
  delete <collection> <id>...      delete records
  history <collection> <id>        print the commits touching a record
  version                          print version and exit

Flags:
`

func mainImpl() error {
	configPath := flag.String("config", "flexstore.yaml", "Configuration file")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	versioned := flag.Bool("versioned", false, "Record every change as a git commit in the data directory")
	watch := flag.Bool("watch", false, "Keep running after the verb and reload collections edited on disk")
	metrics := flag.Bool("metrics", false, "Print the metrics on exit")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing verb")
	}
	if args[0] == "version" {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data-dir":
			cfg.DataDir = *dataDir
		case "log-level":
			cfg.LogLevel = *logLevel
		case "versioned":
			cfg.Versioned = *versioned
		case "watch":
			cfg.Watch = *watch
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	ll := &slog.LevelVar{}
	ll.Set(level)
	slog.SetDefault(newLogger(ll))

	db, err := jsonldb.Open(cfg.Store())
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("Failed to close watchers", "err", err)
		}
	}()
	m, err := openModels(db)
	if err != nil {
		return err
	}
	var versioner *git.Versioner
	if cfg.Versioned {
		repo, err := git.Open(ctx, cfg.DataDir, cfg.Author)
		if err != nil {
			return err
		}
		versioner = git.NewVersioner(repo, cfg.Author)
		db.AddObserver(versioner)
	}

	a := &app{ctx: ctx, db: db, models: m, versioner: versioner, w: os.Stdout}
	err = a.run(args[0], args[1:])
	if err == nil && cfg.Watch {
		err = a.watch(cfg.WatchInterval)
	}
	if *metrics {
		if err2 := printMetrics(os.Stdout, prometheus.DefaultGatherer); err == nil {
			err = err2
		}
	}
	return err
}

func newLogger(ll *slog.LevelVar) *slog.Logger {
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			val := a.Value.Any()
			skip := false
			switch t := val.(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case int64:
				skip = t == 0
			case float64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// app runs one verb against an opened DB.
type app struct {
	ctx       context.Context
	db        *jsonldb.DB
	models    *models
	versioner *git.Versioner
	w         io.Writer
}

func (a *app) run(verb string, args []string) error {
	switch verb {
	case "demo":
		if len(args) != 0 {
			return fmt.Errorf("unknown arguments: %v", args)
		}
		ab, err := a.models.demo()
		if err != nil {
			return err
		}
		slog.Info("Committed demo records", "collection", collectionAb, "id", ab.ID())
		return a.print(ab)
	case "load":
		if len(args) != 2 {
			return errors.New("usage: load <collection> <id>")
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		return a.load(args[0], id)
	case "list":
		if len(args) < 1 || len(args) > 3 {
			return errors.New("usage: list <collection> [page] [limit]")
		}
		page, limit := 1, 10
		var err error
		if len(args) > 1 {
			if page, err = strconv.Atoi(args[1]); err != nil || page < 1 {
				return fmt.Errorf("invalid page %q", args[1])
			}
		}
		if len(args) > 2 {
			if limit, err = strconv.Atoi(args[2]); err != nil || limit < 1 {
				return fmt.Errorf("invalid limit %q", args[2])
			}
		}
		return a.list(args[0], page, limit)
	case "delete":
		if len(args) < 2 {
			return errors.New("usage: delete <collection> <id>...")
		}
		ids := make([]int64, 0, len(args)-1)
		for _, s := range args[1:] {
			id, err := parseID(s)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		c, err := a.collection(args[0])
		if err != nil {
			return err
		}
		if err := c.Delete(ids...); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", c.Name(), err)
		}
		slog.Info("Deleted records", "collection", c.Name(), "count", len(ids))
		return nil
	case "history":
		if len(args) != 2 {
			return errors.New("usage: history <collection> <id>")
		}
		if a.versioner == nil {
			return errors.New("history requires -versioned")
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		c, err := a.collection(args[0])
		if err != nil {
			return err
		}
		commits, err := a.versioner.History(a.ctx, c, id, 0)
		if err != nil {
			return err
		}
		for _, cm := range commits {
			fmt.Fprintf(a.w, "%s %s %s <%s> %s\n", cm.Hash[:12], cm.Date.Format(time.RFC3339), cm.Author, cm.AuthorEmail, cm.Message)
		}
		return nil
	default:
		return fmt.Errorf("unknown verb %q", verb)
	}
}

func (a *app) load(name string, id int64) error {
	if r, ok := a.models.load(name, id); ok {
		return a.print(r)
	}
	c, err := a.collection(name)
	if err != nil {
		return err
	}
	row, ok := c.Get(id)
	if !ok {
		return fmt.Errorf("%s/%d not found", c.Name(), id)
	}
	return a.printRow(row)
}

func (a *app) list(name string, page, limit int) error {
	records, err := a.models.list(name, page, limit)
	if err == nil {
		for _, r := range records {
			if err := a.print(r); err != nil {
				return err
			}
		}
		return nil
	}
	if !errors.Is(err, errNotDemo) {
		return err
	}
	c, err := a.collection(name)
	if err != nil {
		return err
	}
	rows := c.Select(jsonldb.SortBy("id", false))
	start := min((page-1)*limit, len(rows))
	for _, row := range rows[start:min(start+limit, len(rows))] {
		if err := a.printRow(row); err != nil {
			return err
		}
	}
	return nil
}

// collection returns the collection called name. Only the demo collections
// and the ones already present in the data directory are opened.
func (a *app) collection(name string) (*jsonldb.Collection, error) {
	if c, ok := a.db.Lookup(name); ok {
		return c, nil
	}
	dir := filepath.Join(a.db.Dir(), jsonldb.NormalizeName(name))
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("unknown collection %q", name)
	}
	return a.db.OpenCollection(name, nil, 1)
}

// watch reloads the opened collections when edited on disk until the
// context is canceled.
func (a *app) watch(interval time.Duration) error {
	for _, name := range a.db.Collections() {
		c, _ := a.db.Lookup(name)
		if _, err := c.Watch(a.ctx, interval); err != nil {
			return err
		}
	}
	slog.Info("Watching collections", "dir", a.db.Dir(), "count", len(a.db.Collections()))
	<-a.ctx.Done()
	return a.ctx.Err()
}

func (a *app) print(r record.Record) error {
	s, err := record.JSON(r, 2)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.w, s)
	return err
}

func (a *app) printRow(row jsonldb.Row) error {
	b, err := json.MarshalIndent(row, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	_, err = fmt.Fprintln(a.w, string(b))
	return err
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("flexstore %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
