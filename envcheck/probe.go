package envcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultPython is the interpreter used when none is configured.
const DefaultPython = "python3"

// probeScript prints the torch and CUDA versions as a single JSON line.
const probeScript = `import json, torch; print(json.dumps({"torch": str(torch.__version__), "cuda": torch.version.cuda}))`

var _ Probe = (*PythonProbe)(nil)
var _ Probe = StaticProbe{}

// PythonProbe asks a python interpreter for the installed torch versions.
type PythonProbe struct {
	Python         string
	Env            []string
	CommandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

func NewPythonProbe(python string) *PythonProbe {
	if python == "" {
		python = DefaultPython
	}
	return &PythonProbe{
		Python:         python,
		CommandContext: exec.CommandContext,
	}
}

func (p *PythonProbe) Versions(ctx context.Context) (Versions, error) {
	cmdContext := p.CommandContext
	if cmdContext == nil {
		cmdContext = exec.CommandContext
	}
	cmd := cmdContext(ctx, p.Python, "-c", probeScript)
	if len(p.Env) > 0 {
		cmd.Env = p.Env
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Versions{}, fmt.Errorf("%s exited with code %d: %s", p.Python, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return Versions{}, fmt.Errorf("failed to run %s: %w", p.Python, err)
	}
	return parseProbeOutput(out)
}

// parseProbeOutput decodes the last non-empty line, since importing torch
// can print warnings to stdout before the JSON line.
func parseProbeOutput(out []byte) (Versions, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return Versions{}, errors.New("version probe produced no output")
	}

	var decoded struct {
		Torch string  `json:"torch"`
		Cuda  *string `json:"cuda"`
	}
	if err := json.Unmarshal([]byte(last), &decoded); err != nil {
		return Versions{}, fmt.Errorf("failed to decode version probe output %q: %w", last, err)
	}
	if decoded.Torch == "" {
		return Versions{}, fmt.Errorf("version probe reported no torch version: %q", last)
	}

	v := Versions{Torch: decoded.Torch}
	if decoded.Cuda != nil {
		v.Cuda = *decoded.Cuda
	}
	return v, nil
}

// StaticProbe returns fixed versions.
type StaticProbe Versions

func (s StaticProbe) Versions(context.Context) (Versions, error) {
	return Versions(s), nil
}
