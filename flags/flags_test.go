package flags

import (
	"testing"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range optionalFlags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts between the many flags.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range Flags {
		name := flag.Names()[0]
		if _, ok := seenCLI[name]; ok {
			t.Errorf("duplicate flag %s", name)
			continue
		}
		seenCLI[name] = struct{}{}
	}
}

func TestHasEnvVar(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")
		})
	}
}

func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")

			expectedEnvVar := opservice.FlagNameToEnvVarName(flagName, EnvVarPrefix)
			require.Equal(t, expectedEnvVar, envFlags[0])
		})
	}
}

func TestVersionFlags(t *testing.T) {
	testCases := []struct {
		name  string
		args  []string
		env   map[string]string
		torch string
		cuda  string
	}{
		{"unset", []string{"app"}, nil, "", ""},
		{"torch only", []string{"app", "--torch_ver", "2.1"}, nil, "2.1", ""},
		{"both", []string{"app", "--torch_ver", "2.1.0", "--cuda_ver", "12.1"}, nil, "2.1.0", "12.1"},
		{"not validated at parse time", []string{"app", "--torch_ver", "not-a-version"}, nil, "not-a-version", ""},
		{"from env", []string{"app"}, map[string]string{"OP_DISTTEST_CUDA_VER": "11.8"}, "", "11.8"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			app := &cli.App{
				Flags: []cli.Flag{TorchVersion, CudaVersion},
				Action: func(ctx *cli.Context) error {
					assert.Equal(t, tc.torch, ctx.String(TorchVersion.Name))
					assert.Equal(t, tc.cuda, ctx.String(CudaVersion.Name))
					return nil
				},
			}
			require.NoError(t, app.Run(tc.args))
		})
	}
}

func TestMasterPortFlag(t *testing.T) {
	testCases := []struct {
		name        string
		args        []string
		shouldError bool
	}{
		{"default", []string{"app"}, false},
		{"valid", []string{"app", "--master-port", "29500"}, false},
		{"negative", []string{"app", "--master-port", "-1"}, true},
		{"too large", []string{"app", "--master-port", "70000"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app := &cli.App{
				Flags:  []cli.Flag{MasterPort},
				Action: func(ctx *cli.Context) error { return nil },
			}
			err := app.Run(tc.args)
			if tc.shouldError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckRequired(t *testing.T) {
	run := func(args ...string) error {
		app := &cli.App{
			Flags:  []cli.Flag{Plan},
			Action: CheckRequired,
		}
		return app.Run(append([]string{"app"}, args...))
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag plan is required")

	require.NoError(t, run("--plan", "plan.yaml"))
}
