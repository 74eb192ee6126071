package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-disttest/metrics"
	"github.com/ethereum-optimism/infra/op-disttest/types"
)

// Session runs a fixed list of items once.
type Session struct {
	log      log.Logger
	plugins  *PluginManager
	items    []*types.Item
	fixtures map[string]*types.FixtureDef
	envCheck func(ctx context.Context) error
	workDir  string
	env      []string
	runID    string
	tracer   trace.Tracer

	initOnce sync.Once
	initErr  error

	// fixture outcomes, keyed by fixtureKey
	fixtureMu   sync.Mutex
	fixtureDone map[fixtureKey]error
}

// Config holds configuration for creating a new session
type Config struct {
	Log      log.Logger
	Plugins  *PluginManager // defaults to NewPluginManager()
	Items    []*types.Item
	Fixtures map[string]*types.FixtureDef
	// EnvCheck runs once before the first item. An error aborts the session.
	EnvCheck func(ctx context.Context) error
	WorkDir  string
	Env      []string
	// RunID names the run. A fresh UUID is used for every Run when empty.
	RunID    string
}

// NewSession creates a new session instance
func NewSession(cfg Config) (*Session, error) {
	if len(cfg.Items) == 0 {
		return nil, errors.New("no test items")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Plugins == nil {
		cfg.Plugins = NewPluginManager()
	}
	if cfg.Fixtures == nil {
		cfg.Fixtures = make(map[string]*types.FixtureDef)
	}

	seen := make(map[string]bool)
	for _, item := range cfg.Items {
		if item == nil || item.ID == "" {
			return nil, errors.New("test item without ID")
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("duplicate test item %q", item.ID)
		}
		seen[item.ID] = true
		for _, name := range item.Fixtures {
			if _, ok := cfg.Fixtures[name]; !ok {
				return nil, fmt.Errorf("test %q requires unknown fixture %q", item.ID, name)
			}
		}
	}

	cfg.Log.Debug("NewSession()", "items", len(cfg.Items), "fixtures", len(cfg.Fixtures), "workDir", cfg.WorkDir)

	return &Session{
		log:         cfg.Log,
		plugins:     cfg.Plugins,
		items:       cfg.Items,
		fixtures:    cfg.Fixtures,
		envCheck:    cfg.EnvCheck,
		workDir:     cfg.WorkDir,
		env:         cfg.Env,
		runID:       cfg.RunID,
		tracer:      otel.Tracer("session runner"),
		fixtureDone: make(map[fixtureKey]error),
	}, nil
}

// Init runs the environment check. It runs at most once per session; later
// calls return the first outcome. Run calls Init before the first item, and a
// non-nil error means no item may run.
func (s *Session) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		if s.envCheck == nil {
			return
		}
		s.initErr = s.envCheck(ctx)
	})
	return s.initErr
}

// Run runs every item in order. It returns an error without a result when
// Init fails, and a partial result with the context error when ctx ends
// between items.
func (s *Session) Run(ctx context.Context) (*SessionResult, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	runID := s.runID
	if runID == "" {
		runID = uuid.New().String()
	}
	start := time.Now()
	s.log.Debug("Running session", "run_id", runID, "items", len(s.items))

	result := newSessionResult(runID, start)
	for _, item := range s.items {
		if err := ctx.Err(); err != nil {
			s.finish(result, start)
			return result, fmt.Errorf("session interrupted before %s: %w", item.ID, err)
		}
		res := s.runItem(ctx, item)
		result.add(res)
		metrics.RecordTest(runID, item.Class, string(res.Status))
	}

	s.finish(result, start)
	metrics.RecordSession(runID, string(result.Status), result.Duration)
	return result, nil
}

func (s *Session) finish(result *SessionResult, start time.Time) {
	result.Duration = time.Since(start)
	result.Stats.EndTime = time.Now()
	result.Status = determineSessionStatus(result.Stats)
}

func (s *Session) runItem(ctx context.Context, item *types.Item) *types.TestResult {
	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("test %s", item.ID), trace.WithAttributes(
		attribute.String("class", item.Class),
		attribute.String("name", item.Name),
	))
	defer span.End()

	logger := s.log.New("test", item.ID)
	if item.Request == nil {
		item.Request = &types.Request{
			Item:    item,
			WorkDir: s.workDir,
			Env:     s.env,
			Log:     logger,
		}
	}

	res := &types.TestResult{Item: item}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		res.Dispatched = item.Dispatched
		span.SetAttributes(attribute.String("status", string(res.Status)))
	}()

	if item.Skip != "" {
		logger.Info("Skipping test", "reason", item.Skip)
		res.Status = types.TestStatusSkip
		return res
	}

	for _, name := range item.Fixtures {
		if err := s.setupFixture(ctx, item.ID, name, item.Request.ForFixture(name)); err != nil {
			logger.Error("Fixture setup failed", "fixture", name, "err", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "fixture setup failed")
			res.Status = types.TestStatusError
			res.Error = fmt.Errorf("fixture %q: %w", name, err)
			return res
		}
	}

	runCtx := ctx
	if item.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, item.Timeout)
		defer cancel()
	}

	logger.Info("Running test")
	if err := s.plugins.CallRunTest(runCtx, item); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %v: %w", item.Timeout, err)
		}
		logger.Error("Test failed", "err", err, "dispatched", item.Dispatched)
		span.RecordError(err)
		span.SetStatus(codes.Error, "test failed")
		res.Status = types.TestStatusFail
		res.Error = err
		return res
	}

	logger.Info("Test passed", "dispatched", item.Dispatched)
	res.Status = types.TestStatusPass
	return res
}

// fixtureKey identifies one fixture setup. Item is empty for session-scoped
// fixtures.
type fixtureKey struct {
	name string
	item string
}

// setupFixture sets a fixture up for the requesting item. Session-scoped
// fixtures are set up once, and their outcome, error included, is reported to
// every later item that needs them.
func (s *Session) setupFixture(ctx context.Context, itemID, name string, req *types.Request) error {
	s.fixtureMu.Lock()
	defer s.fixtureMu.Unlock()

	def := s.fixtures[name]
	key := fixtureKey{name: name, item: itemID}
	if def.SessionScoped() {
		key.item = ""
	}
	if err, done := s.fixtureDone[key]; done {
		return err
	}

	handledBy, err := s.plugins.CallFixtureSetup(ctx, def, req)
	s.fixtureDone[key] = err
	s.log.Debug("Fixture set up", "fixture", name, "scope", def.Scope, "plugin", handledBy, "err", err)
	return err
}
