package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-disttest/types"
)

// ClassResult captures aggregated results for a test class
type ClassResult struct {
	ID       string
	Tests    map[string]*types.TestResult
	Order    []string // test names in run order
	Status   types.TestStatus
	Duration time.Duration
	Stats    ResultStats
}

// SessionResult captures the complete session results
type SessionResult struct {
	RunID      string
	Classes    map[string]*ClassResult
	ClassOrder []string
	Results    []*types.TestResult // every result in run order
	Status     types.TestStatus
	Duration   time.Duration
	Stats      ResultStats
}

// ResultStats tracks test statistics at each level
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	Errored   int
	StartTime time.Time
	EndTime   time.Time
}

func newSessionResult(runID string, start time.Time) *SessionResult {
	return &SessionResult{
		RunID:   runID,
		Classes: make(map[string]*ClassResult),
		Stats:   ResultStats{StartTime: start},
	}
}

func (r *SessionResult) add(res *types.TestResult) {
	item := res.Item
	class, ok := r.Classes[item.Class]
	if !ok {
		class = &ClassResult{
			ID:    item.Class,
			Tests: make(map[string]*types.TestResult),
		}
		r.Classes[item.Class] = class
		r.ClassOrder = append(r.ClassOrder, item.Class)
	}
	class.Tests[item.Name] = res
	class.Order = append(class.Order, item.Name)
	class.Duration += res.Duration
	class.Stats.count(res.Status)
	class.Status = determineSessionStatus(class.Stats)

	r.Results = append(r.Results, res)
	r.Stats.count(res.Status)
}

func (s *ResultStats) count(status types.TestStatus) {
	s.Total++
	switch status {
	case types.TestStatusPass:
		s.Passed++
	case types.TestStatusFail:
		s.Failed++
	case types.TestStatusSkip:
		s.Skipped++
	case types.TestStatusError:
		s.Errored++
	}
}

// determineSessionStatus: any failure or error fails; all skipped skips.
func determineSessionStatus(stats ResultStats) types.TestStatus {
	if stats.Failed > 0 || stats.Errored > 0 {
		return types.TestStatusFail
	}
	if stats.Total > 0 && stats.Skipped == stats.Total {
		return types.TestStatusSkip
	}
	return types.TestStatusPass
}

// Failed returns the results that failed or errored, in run order.
func (r *SessionResult) Failed() []*types.TestResult {
	var failed []*types.TestResult
	for _, res := range r.Results {
		if res.Status == types.TestStatusFail || res.Status == types.TestStatusError {
			failed = append(failed, res)
		}
	}
	return failed
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// String returns a formatted string representation of the session results
func (r *SessionResult) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Test Session Results (%s):\n", formatDuration(r.Duration)))
	b.WriteString(fmt.Sprintf("Total: %d, Passed: %d, Failed: %d, Errors: %d, Skipped: %d\n",
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Errored, r.Stats.Skipped))

	for _, className := range r.ClassOrder {
		class := r.Classes[className]
		label := className
		if label == "" {
			label = "(no class)"
		}
		b.WriteString(fmt.Sprintf("\nClass: %s (%s)\n", label, formatDuration(class.Duration)))
		b.WriteString(fmt.Sprintf("├── Status: %s\n", class.Status))
		b.WriteString(fmt.Sprintf("├── Tests: %d passed, %d failed, %d errors, %d skipped\n",
			class.Stats.Passed, class.Stats.Failed, class.Stats.Errored, class.Stats.Skipped))

		for i, name := range class.Order {
			test := class.Tests[name]
			prefix := "├──"
			if i == len(class.Order)-1 {
				prefix = "└──"
			}
			mode := ""
			if test.Dispatched {
				mode = " [distributed]"
			}
			b.WriteString(fmt.Sprintf("%s Test: %s (%s) [status=%s]%s\n",
				prefix, name, formatDuration(test.Duration), test.Status, mode))
			if test.Error != nil {
				b.WriteString(fmt.Sprintf("│       └── Error: %s\n", test.Error.Error()))
			}
		}
	}
	return b.String()
}
