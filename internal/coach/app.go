package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"CoachChat/internal/auth"
	"CoachChat/internal/config"
	"CoachChat/internal/course"
	"CoachChat/internal/kv"
	"CoachChat/internal/session"
	"CoachChat/internal/telemetry"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// courseProgressKey holds the JSON list of completed unit ids
const courseProgressKey = "coach_course_completed"

// Options overrides collaborators that are otherwise built from the config
type Options struct {
	In         io.Reader
	Out        io.Writer
	Logger     *slog.Logger
	HTTPClient *http.Client
	Tokens     auth.TokenProvider
	Store      kv.Store
}

// App wires the session client, local storage and course for the CLI
type App struct {
	cfg    *config.Config
	store  kv.Store
	client *session.Client
	course *course.Course
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	ui     *renderer

	closers []func() error
}

// New creates an App and restores the persisted session
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		cfg:    cfg,
		course: course.Default(),
		in:     opts.In,
		out:    opts.Out,
	}
	if a.in == nil {
		a.in = os.Stdin
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	a.ui = newRenderer(a.out)

	if err := a.initLogger(opts.Logger); err != nil {
		a.Close()
		return nil, err
	}

	var tracer trace.Tracer
	var meter metric.Meter
	if cfg.Telemetry && !cfg.Ephemeral {
		t, m, cleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir())
		if err != nil {
			a.logger.Warn("telemetry disabled", "error", err)
		} else {
			tracer, meter = t, m
			a.closers = append(a.closers, func() error { cleanup(); return nil })
		}
	}

	if err := a.initStore(opts.Store); err != nil {
		a.Close()
		return nil, err
	}

	tokens := opts.Tokens
	if tokens == nil {
		tokens = TokenProvider(cfg)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	client, err := session.NewClient(session.Config{
		BaseURL:    cfg.BaseURL,
		HTTPClient: httpClient,
		Tokens:     tokens,
		Store:      a.store,
		Logger:     a.logger,
		Tracer:     tracer,
		Meter:      meter,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize session client: %w", err)
	}
	a.client = client

	if err := client.Restore(ctx); err != nil {
		a.logger.Warn("failed to restore session", "error", err)
	}
	if err := a.restoreCourse(ctx); err != nil {
		a.logger.Warn("failed to restore course progress", "error", err)
	}

	if cfg.Debug {
		a.logger.Info("debug mode enabled")
	}
	return a, nil
}

func (a *App) initLogger(logger *slog.Logger) error {
	switch {
	case logger != nil:
		a.logger = logger
	case a.cfg.Ephemeral:
		a.logger = telemetry.DiscardLogger()
	default:
		l, closer, err := telemetry.InitLogger(a.cfg.LogDir(), a.cfg.Debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.logger = l
		a.closers = append(a.closers, closer.Close)
	}
	return nil
}

func (a *App) initStore(store kv.Store) error {
	switch {
	case store != nil:
		a.store = store
	case a.cfg.Ephemeral:
		a.store = kv.NewMemory()
	default:
		db, err := kv.OpenSQLite(a.cfg.DBDriver, a.cfg.DBPath())
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		a.store = db
	}
	a.closers = append(a.closers, a.store.Close)
	return nil
}

// restoreCourse replays the completed units saved by CompleteWeek
func (a *App) restoreCourse(ctx context.Context) error {
	raw, ok, err := a.store.Get(ctx, courseProgressKey)
	if err != nil || !ok {
		return err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return fmt.Errorf("decode course progress: %w", err)
	}
	for _, id := range ids {
		if err := a.course.SetCompleted(id, true); err != nil {
			a.logger.Warn("skipping stored course unit", "unit", id, "error", err)
		}
	}
	return nil
}

func (a *App) saveCourse(ctx context.Context) error {
	ids := []string{}
	for _, u := range a.course.Units() {
		if u.Completed {
			ids = append(ids, u.ID)
		}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return a.store.Set(ctx, courseProgressKey, string(data))
}

// TokenProvider picks the token source configured in cfg. With none
// configured every request fails with an auth error.
func TokenProvider(cfg *config.Config) auth.TokenProvider {
	switch {
	case cfg.Token != "":
		return auth.Static(cfg.Token)
	case cfg.TokenFile != "":
		return auth.File(cfg.TokenFile)
	case cfg.TokenCommand != "":
		if cmd, ok := auth.ParseCommand(cfg.TokenCommand); ok {
			return cmd
		}
	}
	return auth.Static("")
}

// Client returns the session client
func (a *App) Client() *session.Client {
	return a.client
}

// Store returns the local key-value store
func (a *App) Store() kv.Store {
	return a.store
}

// Close releases storage and flushes logs and telemetry, last opened first
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
