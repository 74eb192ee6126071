package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const samplePlan = `
fixtures:
  - name: dist_init
    distributed: true
    world_size: 2
    command: ["python", "-m", "tests.fixtures.dist_init"]
  - name: dataset
    scope: session
    command: ["python", "-m", "tests.fixtures.dataset"]
classes:
  - name: TestAllReduce
    distributed: true
    world_size: 4
    timeout: 5m
    tests:
      - name: test_sum
        command: ["python", "-m", "pytest", "-k", "test_sum"]
        fixtures: [dist_init]
      - name: test_big
        skip: "needs 8 GPUs"
  - name: TestConfig
    tests:
      - name: test_parse
        command: ["python", "-m", "pytest", "-k", "test_parse"]
        timeout: 30s
`

func TestPlanDecode(t *testing.T) {
	var plan PlanConfig
	require.NoError(t, yaml.Unmarshal([]byte(samplePlan), &plan))
	require.NoError(t, plan.Validate())

	require.Len(t, plan.Classes, 2)
	dist := plan.Classes[0]
	assert.True(t, dist.Distributed)
	assert.Equal(t, 4, dist.EffectiveWorldSize())
	assert.Equal(t, 5*time.Minute, dist.TestTimeout(dist.Tests[0], time.Minute))
	assert.Equal(t, "needs 8 GPUs", dist.Tests[1].Skip)

	plain := plan.Classes[1]
	assert.False(t, plain.Distributed)
	assert.Equal(t, 1, plain.EffectiveWorldSize())
	assert.Equal(t, 30*time.Second, plain.TestTimeout(plain.Tests[0], time.Minute))

	require.Len(t, plan.Fixtures, 2)
	assert.Equal(t, 2, plan.Fixtures[0].EffectiveWorldSize())
	assert.Equal(t, FixtureScope(""), plan.Fixtures[0].Scope)
	assert.Equal(t, FixtureScopeSession, plan.Fixtures[1].Scope)
}

func TestPlanValidate(t *testing.T) {
	cmd := []string{"true"}
	testCases := []struct {
		name    string
		plan    PlanConfig
		wantErr []string
	}{
		{
			name:    "empty plan",
			plan:    PlanConfig{},
			wantErr: []string{"plan has no classes"},
		},
		{
			name: "duplicate class and test",
			plan: PlanConfig{Classes: []ClassConfig{
				{Name: "A", Tests: []TestConfig{{Name: "t", Command: cmd}, {Name: "t", Command: cmd}}},
				{Name: "A"},
			}},
			wantErr: []string{`duplicate test "A::t"`, `duplicate class "A"`},
		},
		{
			name: "unknown fixture",
			plan: PlanConfig{Classes: []ClassConfig{
				{Name: "A", Tests: []TestConfig{{Name: "t", Command: cmd, Fixtures: []string{"missing"}}}},
			}},
			wantErr: []string{`requires unknown fixture "missing"`},
		},
		{
			name: "missing command",
			plan: PlanConfig{
				Fixtures: []FixtureConfig{{Name: "f"}},
				Classes:  []ClassConfig{{Name: "A", Tests: []TestConfig{{Name: "t"}}}},
			},
			wantErr: []string{`fixture "f" has no command`, `test "A::t" has no command`},
		},
		{
			name: "invalid fixture scope",
			plan: PlanConfig{
				Fixtures: []FixtureConfig{{Name: "f", Command: cmd, Scope: "module"}},
				Classes:  []ClassConfig{{Name: "A", Tests: []TestConfig{{Name: "t", Command: cmd}}}},
			},
			wantErr: []string{`fixture "f" has invalid scope "module"`},
		},
		{
			name: "negative world size",
			plan: PlanConfig{Classes: []ClassConfig{
				{Name: "A", WorldSize: -1, Tests: []TestConfig{{Name: "t", Command: cmd}}},
			}},
			wantErr: []string{"invalid world_size -1"},
		},
		{
			name: "skipped test needs no command",
			plan: PlanConfig{Classes: []ClassConfig{
				{Name: "A", Tests: []TestConfig{{Name: "t", Skip: "later"}}},
			}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.plan.Validate()
			if len(tc.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tc.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestItemID(t *testing.T) {
	assert.Equal(t, "TestAllReduce::test_sum", ItemID("TestAllReduce", "test_sum"))
	assert.Equal(t, "test_free", ItemID("", "test_free"))
}

func TestRequestForFixture(t *testing.T) {
	item := &Item{ID: "A::t"}
	req := &Request{Item: item, WorkDir: "/w"}
	fixtureReq := req.ForFixture("dist_init")

	assert.Equal(t, "dist_init", fixtureReq.Fixture)
	assert.Equal(t, "", req.Fixture, "original request must not change")
	assert.Same(t, item, fixtureReq.Item)
}
