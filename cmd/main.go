package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	disttest "github.com/ethereum-optimism/infra/op-disttest"
	"github.com/ethereum-optimism/infra/op-disttest/exitcodes"
	"github.com/ethereum-optimism/infra/op-disttest/flags"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-disttest"
	app.Usage = "Distributed ML test session runner"
	app.Description = "op-disttest verifies the torch and CUDA versions, then runs a test plan, " +
		"launching tests of distributed classes as process groups"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "Check the environment, then run the test plan (default)",
			Action: cliapp.LifecycleCmd(run),
		},
		{
			Name:   "check",
			Usage:  "Only check the installed torch and CUDA versions",
			Action: check,
		},
	}
	app.ExitErrHandler = exitErrHandler
	return app
}

func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	// RuntimeError, TestFailureError and MismatchError carry their own exit code
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		cli.HandleExitCoder(exitErr)
		return
	}
	// For other unspecified errors, default to exit code 1
	cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
}

func setupLogger(ctx *cli.Context) log.Logger {
	logCfg := oplog.ReadCLIConfig(ctx)
	logger := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())
	oplog.SetupDefaults()
	return logger
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	log := setupLogger(ctx)

	cfg, err := disttest.NewConfig(ctx, log)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, disttest.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	h, err := disttest.New(ctx.Context, cfg, Version, nil, ctx.App.Writer, closeApp)
	if err != nil {
		return nil, disttest.NewRuntimeError(fmt.Errorf("failed to create harness: %w", err))
	}
	return h, nil
}

func check(ctx *cli.Context) error {
	log := setupLogger(ctx)

	cfg, err := disttest.NewCheckConfig(ctx, log)
	if err != nil {
		return disttest.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	_, err = disttest.Check(ctx.Context, cfg, nil, ctx.App.Writer)
	return err
}
