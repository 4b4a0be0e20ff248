// Package weave applies configured snippet rules to compiled classes.
//
// A run loads and validates the rule store, scans the class directories for
// classes in the target package, weaves each class in memory and writes it
// back only when its bytes changed. Runs are sequential: one class is
// resolved, woven and written before the next is read.
package weave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/solatis/weaver/internal/rules"
	"github.com/solatis/weaver/internal/types"
)

// State is the run state machine:
//
//	Idle -> ConfigLoaded -> Validated -> Scanning -> Done
//
// with Aborted reachable from every state on a fatal error.
type State string

const (
	StateIdle         State = "idle"
	StateConfigLoaded State = "config_loaded"
	StateValidated    State = "validated"
	StateScanning     State = "scanning"
	StateDone         State = "done"
	StateAborted      State = "aborted"
)

// Options are the inputs of a run.
type Options struct {
	Package       string
	ClassDirs     []string
	Classpath     []string
	BootClasspath []string
	Mode          types.BuildMode
	ConfigFiles   []string
	DefaultConfig bool
}

// Observer is notified of state changes and finished classes.
type Observer interface {
	StateChanged(runID types.RunID, s State)
	ClassDone(runID types.RunID, r ClassResult, elapsed time.Duration)
}

// Result is the report of a run.
type Result struct {
	RunID    types.RunID
	State    State
	Started  time.Time
	Finished time.Time
	Package  string
	Mode     types.BuildMode
	Rules    int
	Scanned  int
	Classes  []ClassResult
	Warnings []types.Warning
	Err      error
}

// Written returns the number of rewritten classes.
func (r *Result) Written() int {
	n := 0
	for _, c := range r.Classes {
		if c.State == ClassWritten {
			n++
		}
	}
	return n
}

// Woven returns the number of classes that received at least one edit.
func (r *Result) Woven() int {
	n := 0
	for _, c := range r.Classes {
		if len(c.Edits) > 0 {
			n++
		}
	}
	return n
}

// Weaver runs weaving with a fixed configuration.
type Weaver struct {
	opts       Options
	serializer ClassSerializer
	logger     *slog.Logger
	providers  ProviderFactory
	observers  []Observer
	store      *rules.Store
}

// Option customizes a Weaver.
type Option func(*Weaver)

// WithProviderFactory replaces the classfile pool factory.
func WithProviderFactory(f ProviderFactory) Option {
	return func(w *Weaver) { w.providers = f }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(w *Weaver) { w.observers = append(w.observers, o) }
}

// WithStore uses an already built rule store instead of loading config.
func WithStore(s *rules.Store) Option {
	return func(w *Weaver) { w.store = s }
}

// New creates a weaver. A nil logger discards output.
func New(opts Options, serializer ClassSerializer, logger *slog.Logger, options ...Option) *Weaver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w := &Weaver{opts: opts, serializer: serializer, logger: logger}
	for _, o := range options {
		o(w)
	}
	if w.providers == nil {
		w.providers = PoolFactory(logger, opts.Classpath, opts.BootClasspath)
	}
	return w
}

// Run performs one weaving run. The returned Result is always non-nil; on
// failure its State is StateAborted and the error is also returned.
func (w *Weaver) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:   types.NewRunID(),
		State:   StateIdle,
		Started: time.Now(),
		Package: w.opts.Package,
		Mode:    w.opts.Mode,
	}
	logger := w.logger.With(slog.String("run_id", string(res.RunID)))
	logger.Info("weaving started",
		slog.String("package", w.opts.Package),
		slog.String("mode", w.opts.Mode.String()))

	err := w.run(ctx, logger, res)
	res.Finished = time.Now()
	if err != nil {
		res.Err = err
		w.transition(res, StateAborted)
		logger.Error("weaving aborted", slog.String("error", err.Error()))
		return res, err
	}

	if res.Rules > 0 && res.Woven() == 0 {
		warn := types.Warning{
			Kind:    types.WarnEmptyRun,
			Message: fmt.Sprintf("%d rules configured but no class in %q was woven", res.Rules, w.opts.Package),
		}
		res.Warnings = append(res.Warnings, warn)
		logger.Warn("no class woven", slog.Int("rules", res.Rules), slog.Int("scanned", res.Scanned))
	}
	w.transition(res, StateDone)
	logger.Info("weaving finished",
		slog.Int("scanned", res.Scanned),
		slog.Int("woven", res.Woven()),
		slog.Int("written", res.Written()),
		slog.Int("warnings", len(res.Warnings)),
		slog.Duration("elapsed", res.Finished.Sub(res.Started)))
	return res, nil
}

func (w *Weaver) run(ctx context.Context, logger *slog.Logger, res *Result) error {
	if w.serializer == nil {
		return types.ErrNoSerializer
	}

	store := w.store
	if store == nil {
		s, warnings, err := rules.Load(logger, w.opts.DefaultConfig, w.opts.ConfigFiles)
		if err != nil {
			return err
		}
		store = s
		res.Warnings = append(res.Warnings, warnings...)
	}
	res.Rules = store.Len()
	w.transition(res, StateConfigLoaded)

	res.Warnings = append(res.Warnings, rules.Validate(store, logger)...)
	w.transition(res, StateValidated)

	engine := NewEngine(store, w.opts.Mode, logger)
	writer := NewWriter(w.serializer, logger)
	w.transition(res, StateScanning)

	err := Scan(ctx, logger, w.opts.ClassDirs, w.opts.Package, func(c Candidate) error {
		res.Scanned++
		start := time.Now()
		cr, err := w.weaveOne(ctx, logger, engine, writer, c)
		if err != nil {
			return err
		}
		if cr == nil {
			return nil
		}
		res.Classes = append(res.Classes, *cr)
		for _, o := range w.observers {
			o.ClassDone(res.RunID, *cr, time.Since(start))
		}
		return nil
	})
	res.Warnings = append(res.Warnings, engine.Warnings()...)
	return err
}

// weaveOne resolves, weaves and writes one candidate. A nil result means
// the class is not weavable (an interface).
func (w *Weaver) weaveOne(ctx context.Context, logger *slog.Logger, engine *Engine, writer *Writer, c Candidate) (*ClassResult, error) {
	provider, err := w.providers(c.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open class path for %s: %w", c.Name, err)
	}
	defer provider.Close()

	class, ok, err := provider.Lookup(c.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (scanned at %s)", types.ErrClassNotFound, c.Name, c.Path)
	}
	if class.IsInterface() {
		logger.Debug("skipping interface", slog.String("class", c.Name))
		return nil, nil
	}

	t := NewTarget(class, c.Path, c.Root)
	if err := engine.Weave(t, provider); err != nil {
		var cfgErr *types.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Class == "" {
			cfgErr.Class = c.Name
		}
		return nil, err
	}
	cr, err := writer.Write(ctx, t)
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

func (w *Weaver) transition(res *Result, s State) {
	res.State = s
	for _, o := range w.observers {
		o.StateChanged(res.RunID, s)
	}
}
