package model

type VersionStatus string

const (
	VersionStatusMatch    VersionStatus = "Match"
	VersionStatusMismatch VersionStatus = "Mismatch"
	VersionStatusMissing  VersionStatus = "Missing"
)

// DeploymentRecord is a read-only snapshot of a workload taken at check time
type DeploymentRecord struct {
	Kind        string            `json:"kind" yaml:"kind"`
	Name        string            `json:"name" yaml:"name"`
	Namespace   string            `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// Ref returns the "<kind>/<name>" form used in reports
func (d DeploymentRecord) Ref() string {
	return d.Kind + "/" + d.Name
}

// VersionSource is an object declaring the installed operator version
// (a ClusterServiceVersion on OLM-managed clusters)
type VersionSource struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// VersionComparisonResult is one row of a version report.
// ObservedVersion is nil when the release-version annotation is absent.
type VersionComparisonResult struct {
	Subject         DeploymentRecord `json:"subject" yaml:"subject"`
	ExpectedVersion string           `json:"expectedVersion" yaml:"expectedVersion"`
	ObservedVersion *string          `json:"observedVersion,omitempty" yaml:"observedVersion,omitempty"`
	Status          VersionStatus    `json:"status" yaml:"status"`
}

// Observed returns the observed version and whether it was present
func (r VersionComparisonResult) Observed() (string, bool) {
	if r.ObservedVersion == nil {
		return "", false
	}
	return *r.ObservedVersion, true
}

type Summary struct {
	Total      int `json:"total" yaml:"total"`
	Matched    int `json:"matched" yaml:"matched"`
	Mismatched int `json:"mismatched" yaml:"mismatched"`
	Missing    int `json:"missing" yaml:"missing"`
}

// Add counts one result in the summary
func (s *Summary) Add(status VersionStatus) {
	s.Total++
	switch status {
	case VersionStatusMatch:
		s.Matched++
	case VersionStatusMismatch:
		s.Mismatched++
	case VersionStatusMissing:
		s.Missing++
	}
}

// VersionReport is the outcome of checking one namespace
type VersionReport struct {
	Namespace       string                    `json:"namespace" yaml:"namespace"`
	AnnotationKey   string                    `json:"annotationKey" yaml:"annotationKey"`
	ExpectedVersion string                    `json:"expectedVersion" yaml:"expectedVersion"`
	VersionSource   string                    `json:"versionSource" yaml:"versionSource"`
	Results         []VersionComparisonResult `json:"results" yaml:"results"`
	Summary         Summary                   `json:"summary" yaml:"summary"`
}

// HasDrift returns true if any deployment does not carry the expected version
func (r VersionReport) HasDrift() bool {
	return r.Summary.Mismatched > 0 || r.Summary.Missing > 0
}
