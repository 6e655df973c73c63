package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/spool/adapter"
	redisadapter "github.com/pithecene-io/spool/adapter/redis"
	"github.com/pithecene-io/spool/adapter/webhook"
	"github.com/pithecene-io/spool/cli/config"
	"github.com/pithecene-io/spool/cli/render"
	"github.com/pithecene-io/spool/cli/tui"
	"github.com/pithecene-io/spool/download"
	"github.com/pithecene-io/spool/iox"
	"github.com/pithecene-io/spool/library"
	"github.com/pithecene-io/spool/log"
	"github.com/pithecene-io/spool/metrics"
	"github.com/pithecene-io/spool/store"
	"github.com/pithecene-io/spool/types"
)

// env is the per-invocation runtime shared by commands.
type env struct {
	cfg      *config.Config
	logger   *log.Logger
	store    store.Store
	metrics  *metrics.Collector
	renderer *render.Renderer
	noColor  bool
}

// mergeFlags applies explicitly set CLI flags over cfg.
func mergeFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("store-backend") {
		cfg.Store.Backend = c.String("store-backend")
	}
	if c.IsSet("store-path") {
		cfg.Store.Path = c.String("store-path")
	}
	if c.IsSet("redis-url") {
		cfg.Store.RedisURL = c.String("redis-url")
	}
	cfg.Store.Backend = defaultBackend(cfg.Store.Backend)
	if cfg.Store.Backend == store.BackendFS && cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath
	}
}

// setup loads configuration and opens the store. Errors are already
// mapped to exit codes.
func setup(c *cli.Context) (*env, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitUsage)
	}
	mergeFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(err.Error(), exitUsage)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitUsage)
	}

	logger := log.NewLogger()
	if cfg.Log.Level != "" && !logger.SetLevel(cfg.Log.Level) {
		return nil, cli.Exit(fmt.Sprintf("invalid log level %q", cfg.Log.Level), exitUsage)
	}

	st, err := store.Open(c.Context, store.Options{
		Backend:     cfg.Store.Backend,
		Path:        cfg.Store.Path,
		Region:      cfg.Store.Region,
		Endpoint:    cfg.Store.Endpoint,
		S3PathStyle: cfg.Store.S3PathStyle,
		RedisURL:    cfg.Store.RedisURL,
		RedisPrefix: cfg.Store.RedisPrefix,
	})
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("open store: %v", err), exitStorage)
	}

	return &env{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		metrics:  metrics.NewCollector(cfg.Store.Backend),
		renderer: r,
		noColor:  c.Bool("no-color"),
	}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("store close failed", map[string]any{"error": err.Error()})
	}
	iox.DiscardErr(e.logger.Sync)
}

// newAdapter builds the configured notification adapter, or nil.
func newAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		wc := webhook.Config{URL: cfg.URL, Headers: cfg.Headers, Timeout: cfg.Timeout.Duration, Retries: webhook.DefaultRetries}
		if cfg.Retries != nil {
			wc.Retries = *cfg.Retries
		}
		return webhook.New(wc)
	case "redis":
		rc := redisadapter.Config{URL: cfg.URL, Channel: cfg.Channel, Timeout: cfg.Timeout.Duration, Retries: redisadapter.DefaultRetries}
		if cfg.Retries != nil {
			rc.Retries = *cfg.Retries
		}
		return redisadapter.New(rc)
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
}

// newManager wires a library manager over the env's store.
func (e *env) newManager(emitter download.Emitter) *library.Manager {
	d := e.cfg.Download
	userAgent := d.UserAgent
	if userAgent == "" {
		userAgent = "spool/" + types.Version
	}
	return library.NewManager(e.store, library.Config{
		Concurrency:    d.Concurrency,
		UserAgent:      userAgent,
		FragmentSize:   d.FragmentSize,
		MaxInFlight:    d.MaxInFlight,
		StallTimeout:   d.StallTimeoutOrDefault(),
		AssembleWindow: d.AssembleWindow,
		CacheAssembled: d.CacheAssembled,
		Alerter: download.AlertFunc(func(id, msg string) {
			fmt.Fprintln(os.Stderr, tui.RenderAlert(id, msg, e.noColor))
		}),
		Emitter: emitter,
		Logger:  e.logger,
		Metrics: e.metrics,
	})
}

// closeBus drains pending notifications for at most timeout.
func (e *env) closeBus(bus *adapter.Bus, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := bus.Close(ctx); err != nil {
		e.logger.Warn("notification shutdown incomplete", map[string]any{"error": err.Error()})
	}
}

// storageExit maps store failures to exitStorage and anything else to code.
func storageExit(err error, code int) error {
	var se *store.StorageError
	if errors.As(err, &se) && !errors.Is(err, store.ErrNotFound) {
		return cli.Exit(err.Error(), exitStorage)
	}
	return cli.Exit(err.Error(), code)
}
