// Package disttest wires the version gate, the distributed dispatchers and the
// session runner into a command-line lifecycle.
package disttest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-disttest/dispatch"
	"github.com/ethereum-optimism/infra/op-disttest/envcheck"
	"github.com/ethereum-optimism/infra/op-disttest/exitcodes"
	"github.com/ethereum-optimism/infra/op-disttest/launcher"
	"github.com/ethereum-optimism/infra/op-disttest/logging"
	"github.com/ethereum-optimism/infra/op-disttest/registry"
	"github.com/ethereum-optimism/infra/op-disttest/runner"
	"github.com/ethereum-optimism/infra/op-disttest/service"
	"github.com/ethereum-optimism/infra/op-disttest/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// harness implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &harness{}

// harness runs one test session and exits.
type harness struct {
	config   *Config
	version  string
	registry *registry.Registry
	session  *runner.Session
	svc      *service.Service
	files    *logging.FileLogger // nil without a log dir
	result   *runner.SessionResult
	out      io.Writer

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New loads the plan and wires the session. probe may be nil, in which case
// the installed versions are read through config.Python. Results are printed
// to out, or to stdout when out is nil.
func New(ctx context.Context, config *Config, version string, probe envcheck.Probe, out io.Writer, shutdownCallback func(error)) (*harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if out == nil {
		out = os.Stdout
	}

	config.Log.Debug("Creating harness with config",
		"plan", config.PlanFile,
		"workDir", config.WorkDir,
		"torch_ver", config.Expect.TorchVersion,
		"cuda_ver", config.Expect.CudaVersion)

	if err := envcheck.SetupPythonEnv(config.SrcDir); err != nil {
		return nil, fmt.Errorf("failed to set up python environment: %w", err)
	}

	reg, err := registry.NewRegistry(registry.Config{
		Log:      config.Log,
		PlanFile: config.PlanFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	runID := uuid.New().String()
	var (
		files  *logging.FileLogger
		output launcher.OutputSink
	)
	if config.LogDir != "" {
		if files, err = logging.NewFileLogger(config.LogDir, runID); err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
		output = files
		config.Log.Info("Writing rank output", "dir", files.LogDir())
	}

	items, fixtures, err := buildSession(reg, config, output)
	if err != nil {
		return nil, fmt.Errorf("failed to build session: %w", err)
	}

	plugins := runner.NewPluginManager()
	if err := dispatch.Register(plugins, reg, config.Log); err != nil {
		return nil, err
	}

	if probe == nil {
		probe = envcheck.NewPythonProbe(config.Python)
	}
	checker := envcheck.NewChecker(config.Log, config.Expect, probe)

	session, err := runner.NewSession(runner.Config{
		Log:      config.Log,
		Plugins:  plugins,
		Items:    items,
		Fixtures: fixtures,
		EnvCheck: func(ctx context.Context) error {
			_, err := checker.Check(ctx)
			return err
		},
		WorkDir: config.WorkDir,
		RunID:   runID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	config.Log.Info("disttest.New: created registry and session",
		"items", len(items), "fixtures", len(fixtures),
		"dist_classes", len(reg.Classes()), "dist_fixtures", len(reg.FixtureNames()))

	h := &harness{
		config:           config,
		version:          version,
		registry:         reg,
		session:          session,
		files:            files,
		out:              out,
		shutdownCallback: shutdownCallback,
	}
	if config.Serve {
		h.svc = service.New(service.Config{
			MetricsHost: config.Metrics.ListenAddr,
			MetricsPort: config.Metrics.ListenPort,
			Log:         config.Log,
		})
	}
	return h, nil
}

// Start runs the session once.
// Start implements the cliapp.Lifecycle interface.
func (h *harness) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	h.running.Store(true)
	if h.svc != nil {
		h.svc.Start(ctx)
	}

	if err := h.runSession(ctx); err != nil {
		h.config.Log.Error("Runtime error running tests", "error", err)
		return err
	}

	if h.result.Status == types.TestStatusFail {
		h.config.Log.Warn("Test session completed with failures, returning exit code 1")
		return NewTestFailureError(h.result.String())
	}

	go func() {
		h.shutdownCallback(nil)
	}()
	return nil
}

func (h *harness) runSession(ctx context.Context) error {
	h.config.Log.Info("Running test session...")
	result, err := h.session.Run(ctx)
	if result != nil {
		h.result = result
		h.printResultsTable()
		fmt.Fprintln(h.out, result.String())
		if h.files != nil {
			if err := h.files.LogSummary(result.String()); err != nil {
				h.config.Log.Warn("Failed to write summary", "err", err)
			}
		}
	}
	if err != nil {
		return NewRuntimeError(err)
	}
	h.config.Log.Info("Test session completed", "run_id", result.RunID, "status", result.Status)
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (h *harness) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping op-disttest")
	if !h.running.Load() {
		h.config.Log.Debug("Already stopped, nothing to do")
		return nil
	}
	h.running.Store(false)

	if h.svc != nil {
		h.svc.Shutdown(ctx)
	}
	if h.files != nil {
		if err := h.files.Close(); err != nil {
			h.config.Log.Warn("Failed to close rank output files", "err", err)
		}
	}
	h.config.Log.Info("op-disttest stopped successfully")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (h *harness) Stopped() bool {
	return !h.running.Load()
}

// Result returns the last session result, or nil before Start.
func (h *harness) Result() *runner.SessionResult {
	return h.result
}

// printResultsTable prints the session results to h.out.
func (h *harness) printResultsTable() {
	t := table.NewWriter()
	t.SetOutputMirror(h.out)
	t.SetTitle(fmt.Sprintf("Distributed Test Results (%s)", formatDuration(h.result.Duration)))

	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Tests", "Passed", "Failed", "Errors", "Skipped", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Errors", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, className := range h.result.ClassOrder {
		class := h.result.Classes[className]
		kind := "Class"
		if h.registry.IsDistTest(className) {
			kind = "Dist class"
		}
		t.AppendRow(table.Row{
			kind,
			className,
			formatDuration(class.Duration),
			class.Stats.Total,
			class.Stats.Passed,
			class.Stats.Failed,
			class.Stats.Errored,
			class.Stats.Skipped,
			getResultString(class.Status),
			"",
		})
		for i, name := range class.Order {
			test := class.Tests[name]
			prefix := "├──"
			if i == len(class.Order)-1 {
				prefix = "└──"
			}
			t.AppendRow(table.Row{
				"",
				fmt.Sprintf("%s %s", prefix, name),
				formatDuration(test.Duration),
				1,
				boolToInt(test.Status == types.TestStatusPass),
				boolToInt(test.Status == types.TestStatusFail),
				boolToInt(test.Status == types.TestStatusError),
				boolToInt(test.Status == types.TestStatusSkip),
				getResultString(test.Status),
				extractKeyErrorMessage(test.Error),
			})
		}
		t.AppendSeparator()
	}

	if h.result.Status == types.TestStatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else if h.result.Status == types.TestStatusSkip {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(h.result.Duration),
		h.result.Stats.Total,
		h.result.Stats.Passed,
		h.result.Stats.Failed,
		h.result.Stats.Errored,
		h.result.Stats.Skipped,
		getResultString(h.result.Status),
		"",
	})

	t.Render()
}

// extractKeyErrorMessage picks the most telling line of an error for display.
func extractKeyErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()

	// Python assertion output and launcher timeouts, up to the end of the line
	for _, pattern := range []string{"AssertionError", "Error:", "timed out"} {
		if idx := strings.Index(errStr, pattern); idx != -1 {
			end := len(errStr)
			if newLine := strings.Index(errStr[idx:], "\n"); newLine != -1 {
				end = idx + newLine
			}
			return strings.TrimSpace(errStr[idx:end])
		}
	}

	if idx := strings.Index(errStr, "\n"); idx != -1 {
		return errStr[:idx]
	} else if len(errStr) > 80 {
		return errStr[:70] + "..."
	}
	return errStr
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a marked string representing the test result
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	case types.TestStatusError:
		return "✗ error"
	default:
		return "✗ fail"
	}
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
