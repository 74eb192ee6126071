package disttest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-disttest/envcheck"
	"github.com/ethereum-optimism/infra/op-disttest/exitcodes"
	"github.com/ethereum-optimism/infra/op-disttest/flags"
	"github.com/ethereum-optimism/infra/op-disttest/logging"
	"github.com/ethereum-optimism/infra/op-disttest/types"
)

const passingPlan = `
fixtures:
  - name: dist_init
    distributed: true
    world_size: 2
    command: ["sh", "-c", "touch fixture-$RANK"]
  - name: scratch
    command: ["sh", "-c", "touch scratch"]
classes:
  - name: TestAllReduce
    distributed: true
    world_size: 2
    tests:
      - name: test_sum
        command: ["sh", "-c", "touch sum-$RANK-of-$WORLD_SIZE"]
        fixtures: [dist_init]
      - name: test_skipped
        skip: "needs 8 GPUs"
  - name: TestLocal
    tests:
      - name: test_local
        command: ["sh", "-c", "test -z \"$RANK\" && touch local"]
        fixtures: [scratch]
`

const failingPlan = `
classes:
  - name: TestAllReduce
    distributed: true
    world_size: 2
    tests:
      - name: test_fails
        command: ["sh", "-c", "echo 'AssertionError: tensors differ'; exit 1"]
  - name: TestLocal
    tests:
      - name: test_local
        command: ["sh", "-c", "touch local"]
`

func setupHarness(t *testing.T, plan string, expect envcheck.Expectations, probe envcheck.Probe, opts ...func(*Config)) (*harness, string, chan error) {
	t.Setenv("PROTOCOL_BUFFERS_PYTHON_IMPLEMENTATION", "")
	t.Setenv("PYTHONPATH", "")

	dir := t.TempDir()
	planPath := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(plan), 0o644))

	cfg := &Config{
		PlanFile:       planPath,
		WorkDir:        dir,
		Expect:         expect,
		MasterAddr:     "127.0.0.1",
		DefaultTimeout: time.Minute,
		Log:            testlog.Logger(t, log.LevelInfo),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	shutdown := make(chan error, 1)
	h, err := New(context.Background(), cfg, "test", probe, &bytes.Buffer{}, func(err error) { shutdown <- err })
	require.NoError(t, err)
	return h, dir, shutdown
}

func TestHarnessPassingPlan(t *testing.T) {
	h, dir, shutdown := setupHarness(t, passingPlan,
		envcheck.Expectations{TorchVersion: "2.1", CudaVersion: "12.1"},
		envcheck.StaticProbe{Torch: "2.1.0+cu121", Cuda: "12.1"})

	assert.True(t, h.registry.IsDistTest("TestAllReduce"))
	assert.False(t, h.registry.IsDistTest("TestLocal"))
	assert.True(t, h.registry.IsDistFixture("dist_init"))
	assert.False(t, h.registry.IsDistFixture("scratch"))

	require.NoError(t, h.Start(context.Background()))
	select {
	case err := <-shutdown:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown callback not called")
	}

	result := h.Result()
	require.NotNil(t, result)
	assert.Equal(t, types.TestStatusPass, result.Status)
	assert.Equal(t, 3, result.Stats.Total)
	assert.Equal(t, 2, result.Stats.Passed)
	assert.Equal(t, 1, result.Stats.Skipped)

	for _, name := range []string{"fixture-0", "fixture-1", "sum-0-of-2", "sum-1-of-2", "scratch", "local"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	out := h.out.(*bytes.Buffer).String()
	assert.Contains(t, out, "Dist class")
	assert.Contains(t, out, "[distributed]")

	require.NoError(t, h.Stop(context.Background()))
	assert.True(t, h.Stopped())
}

func TestHarnessWritesRankOutputFiles(t *testing.T) {
	logDir := t.TempDir()
	h, _, _ := setupHarness(t, failingPlan, envcheck.Expectations{}, envcheck.StaticProbe{},
		func(cfg *Config) { cfg.LogDir = logDir })

	require.Error(t, h.Start(context.Background()))
	require.NoError(t, h.Stop(context.Background()))

	runDir := filepath.Join(logDir, logging.RunDirectoryPrefix+h.Result().RunID)
	// the first failing rank may stop the other before it prints
	var combined string
	for _, rank := range []string{"rank-0.log", "rank-1.log"} {
		data, err := os.ReadFile(filepath.Join(runDir, "TestAllReduce__test_fails", rank))
		require.NoError(t, err)
		combined += string(data)
	}
	assert.Contains(t, combined, "AssertionError: tensors differ")
	assert.FileExists(t, filepath.Join(runDir, "TestLocal__test_local", "rank-0.log"))

	summary, err := os.ReadFile(filepath.Join(runDir, logging.SummaryFilename))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "test_fails")
}

func TestHarnessFailingPlan(t *testing.T) {
	h, dir, _ := setupHarness(t, failingPlan, envcheck.Expectations{}, envcheck.StaticProbe{})

	err := h.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.False(t, IsRuntimeError(err))

	result := h.Result()
	require.NotNil(t, result)
	assert.Equal(t, types.TestStatusFail, result.Status)
	assert.Equal(t, 1, result.Stats.Failed)
	assert.Equal(t, 1, result.Stats.Passed)
	assert.FileExists(t, filepath.Join(dir, "local"), "a failing class must not stop later tests")

	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error.Error(), "exited with code 1")
	assert.Equal(t, "AssertionError: tensors differ", extractKeyErrorMessage(failed[0].Error))
}

func TestHarnessVersionMismatchAbortsSession(t *testing.T) {
	h, dir, _ := setupHarness(t, passingPlan,
		envcheck.Expectations{TorchVersion: "2.1"},
		envcheck.StaticProbe{Torch: "2.0.1", Cuda: "11.8"})

	err := h.Start(context.Background())
	require.Error(t, err)

	var exitErr cli.ExitCoder
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, exitcodes.RuntimeErr, exitErr.ExitCode())
	assert.Contains(t, err.Error(), "expected torch version 2.1 did not match found torch version 2.0.1")
	assert.True(t, IsRuntimeError(err))
	assert.True(t, envcheck.IsMismatch(err))

	assert.Nil(t, h.Result())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the plan file may exist: no fixture or test ran")
}

func TestHarnessProbeFailure(t *testing.T) {
	h, _, _ := setupHarness(t, passingPlan,
		envcheck.Expectations{CudaVersion: "12.1"},
		probeFunc(func(context.Context) (envcheck.Versions, error) {
			return envcheck.Versions{}, errors.New("No module named 'torch'")
		}))

	err := h.Start(context.Background())
	require.Error(t, err)
	var exitErr cli.ExitCoder
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, exitcodes.RuntimeErr, exitErr.ExitCode())
	assert.Contains(t, err.Error(), "No module named 'torch'")
}

func TestNewRejectsInvalidPlan(t *testing.T) {
	t.Setenv("PROTOCOL_BUFFERS_PYTHON_IMPLEMENTATION", "")
	dir := t.TempDir()
	planPath := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte("classes:\n  - name: A\n    tests:\n      - name: t\n        fixtures: [missing]\n"), 0o644))

	_, err := New(context.Background(), &Config{
		PlanFile: planPath,
		WorkDir:  dir,
		Log:      testlog.Logger(t, log.LevelInfo),
	}, "test", envcheck.StaticProbe{}, nil, func(error) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown fixture "missing"`)
	assert.Contains(t, err.Error(), "has no command")

	_, err = New(context.Background(), nil, "test", nil, nil, func(error) {})
	require.Error(t, err)
}

func TestCheck(t *testing.T) {
	t.Setenv("PROTOCOL_BUFFERS_PYTHON_IMPLEMENTATION", "")
	t.Setenv("PYTHONPATH", "")
	cfg := &Config{
		Expect: envcheck.Expectations{TorchVersion: "2.1"},
		Log:    testlog.Logger(t, log.LevelInfo),
	}

	var out bytes.Buffer
	report, err := Check(context.Background(), cfg, envcheck.StaticProbe{Torch: "2.1.2"}, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"torch"}, report.Verified)
	assert.Len(t, report.Warnings, 1)
	assert.Contains(t, out.String(), "torch 2.1.2, cuda None")
	assert.Contains(t, out.String(), "warning: Running test without verifying cuda version")
	assert.Equal(t, "python", os.Getenv(envcheck.ProtobufImplEnvVar))

	_, err = Check(context.Background(), cfg, envcheck.StaticProbe{Torch: "2.2.0"}, &out)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.True(t, envcheck.IsMismatch(err))
}

func TestNewConfig(t *testing.T) {
	run := func(args ...string) (*Config, error) {
		var cfg *Config
		var cfgErr error
		app := &cli.App{
			Flags: cliapp.ProtectFlags(flags.Flags),
			Action: func(ctx *cli.Context) error {
				cfg, cfgErr = NewConfig(ctx, testlog.Logger(t, log.LevelInfo))
				return nil
			},
		}
		require.NoError(t, app.Run(append([]string{"op-disttest"}, args...)))
		return cfg, cfgErr
	}

	_, err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag plan is required")

	cfg, err := run("--plan", "plan.yaml", "--torch_ver", "2.1", "--master-port", "29500", "--default-timeout", "2m")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.PlanFile))
	assert.True(t, filepath.IsAbs(cfg.WorkDir))
	assert.Equal(t, "2.1", cfg.Expect.TorchVersion)
	assert.Empty(t, cfg.Expect.CudaVersion)
	assert.Equal(t, 29500, cfg.MasterPort)
	assert.Equal(t, "127.0.0.1", cfg.MasterAddr)
	assert.Equal(t, "python3", cfg.Python)
	assert.Equal(t, 2*time.Minute, cfg.DefaultTimeout)
	assert.False(t, cfg.Serve)
	assert.Empty(t, cfg.LogDir)

	cfg, err = run("--plan", "plan.yaml", "--logdir", "logs")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.LogDir))
	assert.Equal(t, "logs", filepath.Base(cfg.LogDir))
}

type probeFunc func(ctx context.Context) (envcheck.Versions, error)

func (f probeFunc) Versions(ctx context.Context) (envcheck.Versions, error) { return f(ctx) }

func TestExtractKeyErrorMessage(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"assertion", errors.New("rank 1 exited with code 1: exit status 1\noutput: Traceback\nAssertionError: 3 != 4\nmore"), "AssertionError: 3 != 4"},
		{"timeout", errors.New("process group timed out after 5s: rank 0 exited with code -1"), "timed out after 5s: rank 0 exited with code -1"},
		{"first line", errors.New("first\nsecond"), "first"},
		{"short", errors.New("boom"), "boom"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, extractKeyErrorMessage(tc.err))
		})
	}
}
