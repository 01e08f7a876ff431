package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/apptrail-sh/releasecheck/internal/model"
)

const (
	versionMatchMetricName   = "releasecheck_release_version_match"
	versionResultsMetricName = "releasecheck_release_version_results"
)

// Metrics exports version reports as prometheus gauges
type Metrics struct {
	versionMatch   *prometheus.GaugeVec
	versionResults *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		versionMatch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: versionMatchMetricName,
			Help: "1 if the workload release-version annotation matches the installed operator version, 0 otherwise",
		}, []string{
			"namespace",
			"kind",
			"name",
			"annotation_key",
			"expected_version",
			"observed_version",
			"status",
		}),
		versionResults: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: versionResultsMetricName,
			Help: "Number of workloads per release-version check status",
		}, []string{
			"namespace",
			"annotation_key",
			"status",
		}),
	}
	reg.MustRegister(m.versionMatch, m.versionResults)
	return m
}

// Record replaces the series of the report's namespace and annotation key with the
// report's results. Targets sharing a namespace keep separate series.
func (m *Metrics) Record(report *model.VersionReport) {
	labelsToDelete := prometheus.Labels{"namespace": report.Namespace, "annotation_key": report.AnnotationKey}
	m.versionMatch.DeletePartialMatch(labelsToDelete)
	m.versionResults.DeletePartialMatch(labelsToDelete)

	for _, result := range report.Results {
		observed, _ := result.Observed()
		value := 0.0
		if result.Status == model.VersionStatusMatch {
			value = 1
		}
		m.versionMatch.WithLabelValues(
			report.Namespace,
			result.Subject.Kind,
			result.Subject.Name,
			report.AnnotationKey,
			result.ExpectedVersion,
			observed,
			string(result.Status)).Set(value)
	}

	counts := map[model.VersionStatus]int{
		model.VersionStatusMatch:    report.Summary.Matched,
		model.VersionStatusMismatch: report.Summary.Mismatched,
		model.VersionStatusMissing:  report.Summary.Missing,
	}
	for status, count := range counts {
		m.versionResults.WithLabelValues(report.Namespace, report.AnnotationKey, string(status)).Set(float64(count))
	}
}
