// Package envcheck verifies that the installed torch and CUDA versions match
// the versions an operator expects before any test runs.
package envcheck

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-disttest/metrics"
	"github.com/ethereum-optimism/infra/op-disttest/version"
)

const (
	ComponentTorch = "torch"
	ComponentCuda  = "cuda"
)

// Result labels recorded per component
const (
	ResultSkipped  = "skipped"
	ResultMatch    = "match"
	ResultMismatch = "mismatch"
)

// Expectations holds the operator-supplied versions. An empty string means
// the component is not verified.
type Expectations struct {
	TorchVersion string
	CudaVersion  string
}

// Versions are the versions reported by the installed runtime.
// Cuda is empty for CPU-only builds.
type Versions struct {
	Torch string
	Cuda  string
}

// Probe reports the installed runtime versions.
type Probe interface {
	Versions(ctx context.Context) (Versions, error)
}

// Report summarizes a successful Check.
type Report struct {
	Warnings []string
	Verified []string
	Found    *Versions // nil when the probe was never consulted
}

// Checker compares Expectations against a Probe.
type Checker struct {
	log    log.Logger
	expect Expectations
	probe  Probe
}

func NewChecker(logger log.Logger, expect Expectations, probe Probe) *Checker {
	if logger == nil {
		logger = log.New()
	}
	return &Checker{
		log:    logger,
		expect: expect,
		probe:  probe,
	}
}

// Check verifies torch first and then cuda. A missing expectation only logs a
// warning. The first mismatch is returned as a *MismatchError and stops the
// check; no later component is looked at.
func (c *Checker) Check(ctx context.Context) (*Report, error) {
	report := &Report{}
	components := []struct {
		name     string
		flag     string
		expected string
		found    func(Versions) string
	}{
		{ComponentTorch, "--torch_ver", c.expect.TorchVersion, func(v Versions) string { return v.Torch }},
		{ComponentCuda, "--cuda_ver", c.expect.CudaVersion, func(v Versions) string { return v.Cuda }},
	}

	for _, comp := range components {
		if comp.expected == "" {
			msg := fmt.Sprintf("Running test without verifying %s version, please provide an expected %s version with %s",
				comp.name, comp.name, comp.flag)
			c.log.Warn(msg)
			report.Warnings = append(report.Warnings, msg)
			metrics.RecordEnvCheck(comp.name, ResultSkipped)
			continue
		}

		if report.Found == nil {
			found, err := c.lookup(ctx)
			if err != nil {
				return nil, err
			}
			report.Found = &found
		}

		found := comp.found(*report.Found)
		if !version.Validate(comp.expected, found) {
			metrics.RecordEnvCheck(comp.name, ResultMismatch)
			err := &MismatchError{Component: comp.name, Expected: comp.expected, Found: found}
			c.log.Error("Environment version mismatch", "component", comp.name, "expected", comp.expected, "found", found)
			return nil, err
		}
		c.log.Info("Environment version verified", "component", comp.name, "expected", comp.expected, "found", found)
		metrics.RecordEnvCheck(comp.name, ResultMatch)
		report.Verified = append(report.Verified, comp.name)
	}
	return report, nil
}

func (c *Checker) lookup(ctx context.Context) (Versions, error) {
	if c.probe == nil {
		return Versions{}, fmt.Errorf("no version probe configured")
	}
	found, err := c.probe.Versions(ctx)
	if err != nil {
		metrics.RecordErrorDetails("envcheck.probe", err)
		return Versions{}, fmt.Errorf("failed to read installed versions: %w", err)
	}
	c.log.Debug("Installed runtime versions", "torch", found.Torch, "cuda", found.Cuda)
	return found, nil
}
