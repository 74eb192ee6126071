package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_DISTTEST"

var (
	// TorchVersion and CudaVersion carry no default and are not validated at
	// parse time. An unset value skips the matching check with a warning.
	TorchVersion = &cli.StringFlag{
		Name:    "torch_ver",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TORCH_VER"),
		Usage:   "Expected torch version, compared at the depth given (eg. '2.1' matches '2.1.0+cu121')",
	}
	CudaVersion = &cli.StringFlag{
		Name:    "cuda_ver",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CUDA_VER"),
		Usage:   "Expected CUDA version of the torch build (eg. '12.1')",
	}
	Plan = &cli.StringFlag{
		Name:    "plan",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PLAN"),
		Usage:   "Path to the test plan file (eg. 'plan.yaml')",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKDIR"),
		Usage:   "Directory test and fixture commands run in",
	}
	Python = &cli.StringFlag{
		Name:    "python",
		Value:   "python3",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PYTHON"),
		Usage:   "Python interpreter used to read the installed torch and CUDA versions",
	}
	SrcDir = &cli.StringFlag{
		Name:    "src-dir",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SRC_DIR"),
		Usage:   "Source checkout prepended to PYTHONPATH so tests import it instead of an installed copy",
	}
	MasterAddr = &cli.StringFlag{
		Name:    "master-addr",
		Value:   "127.0.0.1",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MASTER_ADDR"),
		Usage:   "Rendezvous address handed to distributed ranks",
	}
	MasterPort = &cli.IntFlag{
		Name:    "master-port",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MASTER_PORT"),
		Usage:   "Rendezvous port handed to distributed ranks. 0 picks a free port for every launch.",
		Action: func(_ *cli.Context, v int) error {
			if v < 0 || v > 65535 {
				return fmt.Errorf("master-port must be between 0 and 65535, got %d", v)
			}
			return nil
		},
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   10 * time.Minute,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Timeout for tests and fixtures that do not set one. 0 disables it.",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory for per-rank output files of every test and fixture. Empty disables them.",
	}
	Serve = &cli.BoolFlag{
		Name:    "serve",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVE"),
		Usage:   "Serve healthz and metrics endpoints while the session runs",
	}
)

// requiredFlags are required by the run command only; check works without them.
var requiredFlags = []cli.Flag{
	Plan,
}

var optionalFlags = []cli.Flag{
	TorchVersion,
	CudaVersion,
	WorkDir,
	Python,
	SrcDir,
	MasterAddr,
	MasterPort,
	DefaultTimeout,
	LogDir,
	Serve,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
