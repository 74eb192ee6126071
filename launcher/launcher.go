// Package launcher starts a command as a group of cooperating processes, one
// per rank, with the rendezvous environment a distributed runtime expects.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

const (
	EnvRank           = "RANK"
	EnvLocalRank      = "LOCAL_RANK"
	EnvWorldSize      = "WORLD_SIZE"
	EnvLocalWorldSize = "LOCAL_WORLD_SIZE"
	EnvMasterAddr     = "MASTER_ADDR"
	EnvMasterPort     = "MASTER_PORT"

	DefaultMasterAddr = "127.0.0.1"

	defaultTailBytes = 4 * 1024
	waitDelay        = 5 * time.Second
)

// CommandBuilder builds the command for one rank.
type CommandBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd

// OutputSink receives a copy of each rank's raw output.
type OutputSink interface {
	RankOutput(label string, rank int) (io.WriteCloser, error)
}

// Config holds configuration for a process group
type Config struct {
	WorldSize  int // defaults to 1
	MasterAddr string
	MasterPort int // 0 picks a free port per launch
	WorkDir    string
	Env        []string // base environment, defaults to os.Environ()
	Timeout    time.Duration
	Log        log.Logger
	// CommandContext defaults to exec.CommandContext.
	CommandContext CommandBuilder
	// Output, when set, also gets the output of every labelled launch.
	Output OutputSink
}

// Group launches commands across WorldSize ranks.
type Group struct {
	cfg Config
	// single groups run one process without the rendezvous environment.
	single bool
}

// NewGroup creates a new process group
func NewGroup(cfg Config) (*Group, error) {
	if cfg.WorldSize == 0 {
		cfg.WorldSize = 1
	}
	if cfg.WorldSize < 0 {
		return nil, fmt.Errorf("world size must be positive, got %d", cfg.WorldSize)
	}
	if cfg.MasterPort < 0 || cfg.MasterPort > 65535 {
		return nil, fmt.Errorf("invalid master port %d", cfg.MasterPort)
	}
	if cfg.MasterAddr == "" {
		cfg.MasterAddr = DefaultMasterAddr
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.CommandContext == nil {
		cfg.CommandContext = exec.CommandContext
	}
	return &Group{cfg: cfg}, nil
}

// Single returns a group that runs one plain process.
func Single(cfg Config) (*Group, error) {
	cfg.WorldSize = 1
	g, err := NewGroup(cfg)
	if err != nil {
		return nil, err
	}
	g.single = true
	return g, nil
}

func (g *Group) WorldSize() int { return g.cfg.WorldSize }

// Run launches command once per rank and waits for all of them. The first
// rank to fail cancels the rest, and its error is returned.
func (g *Group) Run(ctx context.Context, command []string) error {
	return g.run(ctx, "", command, g.cfg.Log)
}

// run launches command. label names the item or fixture in the output sink;
// an empty label skips the sink.
func (g *Group) run(ctx context.Context, label string, command []string, logger log.Logger) error {
	if len(command) == 0 {
		return errors.New("empty command")
	}
	if logger == nil {
		logger = g.cfg.Log
	}

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	port := g.cfg.MasterPort
	if !g.single && port == 0 {
		var err error
		port, err = freePort(g.cfg.MasterAddr)
		if err != nil {
			return fmt.Errorf("failed to pick master port: %w", err)
		}
	}

	logger.Debug("Launching process group", "command", command, "world_size", g.cfg.WorldSize,
		"master", net.JoinHostPort(g.cfg.MasterAddr, strconv.Itoa(port)))

	eg, egCtx := errgroup.WithContext(ctx)
	for rank := 0; rank < g.cfg.WorldSize; rank++ {
		eg.Go(func() error {
			return g.runRank(egCtx, label, rank, port, command, logger)
		})
	}
	err := eg.Wait()
	if err != nil && g.cfg.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("process group timed out after %v: %w", g.cfg.Timeout, err)
	}
	return err
}

func (g *Group) runRank(ctx context.Context, label string, rank, port int, command []string, logger log.Logger) error {
	cmd := g.cfg.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = g.cfg.WorkDir
	cmd.Env = telemetry.InstrumentEnvironment(ctx, g.rankEnv(rank, port))
	cmd.WaitDelay = waitDelay

	rankLog := logger
	if !g.single {
		rankLog = logger.New("rank", rank)
	}
	out := newLineLogger(rankLog, defaultTailBytes)
	var w io.Writer = out
	if g.cfg.Output != nil && label != "" {
		file, err := g.cfg.Output.RankOutput(label, rank)
		if err != nil {
			rankLog.Warn("Failed to open rank output file", "err", err)
		} else {
			defer file.Close()
			w = io.MultiWriter(out, file)
		}
	}
	cmd.Stdout = w
	cmd.Stderr = w

	err := cmd.Run()
	out.Flush()
	if err == nil {
		return nil
	}

	tail := out.Tail()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if g.single {
			err = fmt.Errorf("process exited with code %d: %w", exitErr.ExitCode(), err)
		} else {
			err = fmt.Errorf("rank %d exited with code %d: %w", rank, exitErr.ExitCode(), err)
		}
	} else if g.single {
		err = fmt.Errorf("failed to run process: %w", err)
	} else {
		err = fmt.Errorf("rank %d failed to run: %w", rank, err)
	}
	if tail != "" {
		err = fmt.Errorf("%w\noutput: %s", err, tail)
	}
	return err
}

func (g *Group) rankEnv(rank, port int) []string {
	base := g.cfg.Env
	if base == nil {
		base = os.Environ()
	}
	env := make([]string, 0, len(base)+6)
	env = append(env, base...)
	if g.single {
		return env
	}
	return append(env,
		fmt.Sprintf("%s=%d", EnvRank, rank),
		fmt.Sprintf("%s=%d", EnvLocalRank, rank),
		fmt.Sprintf("%s=%d", EnvWorldSize, g.cfg.WorldSize),
		fmt.Sprintf("%s=%d", EnvLocalWorldSize, g.cfg.WorldSize),
		fmt.Sprintf("%s=%s", EnvMasterAddr, g.cfg.MasterAddr),
		fmt.Sprintf("%s=%d", EnvMasterPort, port),
	)
}

// freePort asks the kernel for an unused TCP port on addr.
func freePort(addr string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(addr, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
