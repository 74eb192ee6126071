package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "disttest"
)

var (
	Debug                bool = true
	validResults              = []string{"pass", "fail", "skip", "error"}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	envChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "env_checks_total",
		Help:      "Count of environment version checks by component and result",
	}, []string{
		"component",
		"result",
	})

	dispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "dispatches_total",
		Help:      "Count of tests and fixtures routed to the distributed path",
	}, []string{
		"kind",
		"name",
		"result",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of test results",
	}, []string{
		"run_id",
		"class",
		"status",
	})

	sessionResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_results",
		Help:      "Result of a test session",
	}, []string{
		"run_id",
		"result",
	})

	sessionDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_duration_seconds",
		Help:      "Duration of a test session",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordEnvCheck(component string, result string) {
	if Debug {
		log.Debug("metric inc",
			"m", "env_checks_total",
			"component", component,
			"result", result)
	}
	envChecksTotal.WithLabelValues(component, result).Inc()
}

// RecordDispatch counts a distributed invocation. kind is "test" or "fixture".
func RecordDispatch(kind string, name string, err error) {
	result := "pass"
	if err != nil {
		result = "fail"
	}
	if Debug {
		log.Debug("metric inc",
			"m", "dispatches_total",
			"kind", kind,
			"name", name,
			"result", result)
	}
	dispatchesTotal.WithLabelValues(kind, name, result).Inc()
}

func RecordTest(runID string, class string, status string) {
	if !isValidResult(status) {
		log.Error("RecordTest - invalid status", "status", status)
		return
	}
	testsTotal.WithLabelValues(runID, class, status).Inc()
}

func RecordSession(runID string, result string, duration time.Duration) {
	sessionResults.WithLabelValues(runID, result).Set(1)
	sessionDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result string) bool {
	return slices.Contains(validResults, result)
}
