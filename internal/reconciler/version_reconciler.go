package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/apptrail-sh/releasecheck/internal/model"
)

var (
	// ErrNoVersionSourceFound is returned when a namespace holds no object declaring the installed version
	ErrNoVersionSourceFound = errors.New("no version source found")
	// ErrListingFailed wraps any failure of the underlying listing capabilities
	ErrListingFailed = errors.New("listing failed")
)

// VersionSourceLister lists the objects declaring the installed operator version in a namespace
type VersionSourceLister interface {
	ListVersionSources(ctx context.Context, namespace string) ([]model.VersionSource, error)
}

// DeploymentLister lists deployment-like workloads in a namespace
type DeploymentLister interface {
	ListDeployments(ctx context.Context, namespace string) ([]model.DeploymentRecord, error)
}

// VersionReconciler compares the release-version annotation of every workload
// in a namespace against the version declared by the namespace's version source.
// It holds no state between calls and never writes to the cluster.
type VersionReconciler struct {
	sources     VersionSourceLister
	deployments DeploymentLister
	log         logr.Logger
}

func NewVersionReconciler(sources VersionSourceLister, deployments DeploymentLister, log logr.Logger) *VersionReconciler {
	return &VersionReconciler{
		sources:     sources,
		deployments: deployments,
		log:         log,
	}
}

// Reconcile builds the version report for a namespace.
// The expected version is taken from the first listed version source and results
// keep the order returned by the deployment listing.
func (vr *VersionReconciler) Reconcile(ctx context.Context, namespace, annotationKey string) (*model.VersionReport, error) {
	log := vr.log.WithValues("namespace", namespace, "annotationKey", annotationKey)

	sources, err := vr.sources.ListVersionSources(ctx, namespace)
	if err != nil {
		log.Error(err, "Failed to list version sources")
		return nil, fmt.Errorf("%w: version sources in namespace %q: %w", ErrListingFailed, namespace, err)
	}
	if len(sources) == 0 {
		log.Info("No version source found")
		return nil, fmt.Errorf("%w in namespace %q", ErrNoVersionSourceFound, namespace)
	}
	source := sources[0]
	log.V(1).Info("Resolved expected version", "versionSource", source.Name, "expectedVersion", source.Version)

	deployments, err := vr.deployments.ListDeployments(ctx, namespace)
	if err != nil {
		log.Error(err, "Failed to list deployments")
		return nil, fmt.Errorf("%w: deployments in namespace %q: %w", ErrListingFailed, namespace, err)
	}

	report := &model.VersionReport{
		Namespace:       namespace,
		AnnotationKey:   annotationKey,
		ExpectedVersion: source.Version,
		VersionSource:   source.Name,
		Results:         make([]model.VersionComparisonResult, 0, len(deployments)),
	}

	for _, deployment := range deployments {
		result := Compare(deployment, annotationKey, source.Version)
		report.Results = append(report.Results, result)
		report.Summary.Add(result.Status)

		if result.Status != model.VersionStatusMatch {
			observed, _ := result.Observed()
			log.Info("Release version drift",
				"deployment", deployment.Ref(),
				"status", result.Status,
				"expectedVersion", source.Version,
				"observedVersion", observed)
		}
	}

	log.Info("Release versions checked",
		"expectedVersion", source.Version,
		"total", report.Summary.Total,
		"matched", report.Summary.Matched,
		"mismatched", report.Summary.Mismatched,
		"missing", report.Summary.Missing)

	return report, nil
}

// Compare classifies a single workload. Versions are compared as literal strings,
// "v2.9.0" and "2.9.0" are a mismatch.
func Compare(deployment model.DeploymentRecord, annotationKey, expectedVersion string) model.VersionComparisonResult {
	result := model.VersionComparisonResult{
		Subject:         deployment,
		ExpectedVersion: expectedVersion,
	}

	observed, ok := deployment.Annotations[annotationKey]
	switch {
	case !ok:
		result.Status = model.VersionStatusMissing
	case observed == expectedVersion:
		result.ObservedVersion = &observed
		result.Status = model.VersionStatusMatch
	default:
		result.ObservedVersion = &observed
		result.Status = model.VersionStatusMismatch
	}

	return result
}
