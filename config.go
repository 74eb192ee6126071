package disttest

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-disttest/envcheck"
	"github.com/ethereum-optimism/infra/op-disttest/flags"
)

// Config holds the application configuration
type Config struct {
	PlanFile       string        // absolute path, empty for the check command
	WorkDir        string        // where test and fixture commands run
	SrcDir         string        // prepended to PYTHONPATH when set
	Python         string        // interpreter used by the version probe
	Expect         envcheck.Expectations
	MasterAddr     string
	MasterPort     int           // 0 picks a free port per launch
	DefaultTimeout time.Duration // for tests and fixtures without their own
	LogDir         string        // per-rank output files, empty to disable
	Serve          bool          // run healthz and metrics servers
	Metrics        opmetrics.CLIConfig
	Log            log.Logger
}

// NewConfig creates the configuration of the run command.
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	cfg, err := NewCheckConfig(ctx, log)
	if err != nil {
		return nil, err
	}

	cfg.PlanFile, err = filepath.Abs(ctx.String(flags.Plan.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for plan '%s': %w", ctx.String(flags.Plan.Name), err)
	}
	return cfg, nil
}

// NewCheckConfig creates the configuration of the check command. No plan is needed.
func NewCheckConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	workDir, err := filepath.Abs(ctx.String(flags.WorkDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for work directory '%s': %w", ctx.String(flags.WorkDir.Name), err)
	}
	if ctx.Duration(flags.DefaultTimeout.Name) < 0 {
		return nil, fmt.Errorf("default-timeout must not be negative")
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir != "" {
		if logDir, err = filepath.Abs(logDir); err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", ctx.String(flags.LogDir.Name), err)
		}
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if ctx.Bool(flags.Serve.Name) {
		if err := metricsCfg.Check(); err != nil {
			return nil, fmt.Errorf("invalid metrics config: %w", err)
		}
	}

	return &Config{
		WorkDir: workDir,
		SrcDir:  ctx.String(flags.SrcDir.Name),
		Python:  ctx.String(flags.Python.Name),
		Expect: envcheck.Expectations{
			TorchVersion: ctx.String(flags.TorchVersion.Name),
			CudaVersion:  ctx.String(flags.CudaVersion.Name),
		},
		MasterAddr:     ctx.String(flags.MasterAddr.Name),
		MasterPort:     ctx.Int(flags.MasterPort.Name),
		DefaultTimeout: ctx.Duration(flags.DefaultTimeout.Name),
		LogDir:         logDir,
		Serve:          ctx.Bool(flags.Serve.Name),
		Metrics:        metricsCfg,
		Log:            log,
	}, nil
}
