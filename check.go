package disttest

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum-optimism/infra/op-disttest/envcheck"
)

// Check runs only the environment check and prints what it found. A mismatch
// or a failed probe is returned as a RuntimeError.
func Check(ctx context.Context, config *Config, probe envcheck.Probe, out io.Writer) (*envcheck.Report, error) {
	if err := envcheck.SetupPythonEnv(config.SrcDir); err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to set up python environment: %w", err))
	}
	if probe == nil {
		probe = envcheck.NewPythonProbe(config.Python)
	}

	report, err := envcheck.NewChecker(config.Log, config.Expect, probe).Check(ctx)
	if err != nil {
		return nil, NewRuntimeError(err)
	}

	if report.Found != nil {
		cuda := report.Found.Cuda
		if cuda == "" {
			cuda = "None"
		}
		fmt.Fprintf(out, "torch %s, cuda %s\n", report.Found.Torch, cuda)
	}
	if len(report.Verified) > 0 {
		fmt.Fprintf(out, "verified: %s\n", strings.Join(report.Verified, ", "))
	}
	for _, w := range report.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	return report, nil
}
