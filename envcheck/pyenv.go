package envcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	ProtobufImplEnvVar = "PROTOCOL_BUFFERS_PYTHON_IMPLEMENTATION"
	PythonPathEnvVar   = "PYTHONPATH"
)

// SetupPythonEnv prepares the process environment inherited by every python
// process the session launches. The protobuf implementation is always forced
// to "python". When srcDir is set it is put first on PYTHONPATH so tests import
// the checkout under test instead of an installed copy.
func SetupPythonEnv(srcDir string) error {
	if err := os.Setenv(ProtobufImplEnvVar, "python"); err != nil {
		return fmt.Errorf("failed to set %s: %w", ProtobufImplEnvVar, err)
	}
	if srcDir == "" {
		return nil
	}

	absSrc, err := filepath.Abs(srcDir)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path for source directory '%s': %w", srcDir, err)
	}
	paths := []string{absSrc}
	if existing := os.Getenv(PythonPathEnvVar); existing != "" {
		for _, p := range filepath.SplitList(existing) {
			if p != absSrc {
				paths = append(paths, p)
			}
		}
	}
	if err := os.Setenv(PythonPathEnvVar, strings.Join(paths, string(os.PathListSeparator))); err != nil {
		return fmt.Errorf("failed to set %s: %w", PythonPathEnvVar, err)
	}
	return nil
}
