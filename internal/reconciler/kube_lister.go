package reconciler

import (
	"context"
	"fmt"

	operatorsv1alpha1 "github.com/operator-framework/api/pkg/operators/v1alpha1"
	v1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/apptrail-sh/releasecheck/internal/model"
)

// KubeLister implements VersionSourceLister and DeploymentLister against the Kubernetes API.
// Version sources are ClusterServiceVersions; deployments are the configured workload kinds.
type KubeLister struct {
	Reader client.Reader

	// Kinds lists workload kinds in output order. Empty means Deployments only.
	Kinds []string

	// Optional label selectors, nil matches everything
	DeploymentSelector    labels.Selector
	VersionSourceSelector labels.Selector
}

// +kubebuilder:rbac:groups=operators.coreos.com,resources=clusterserviceversions,verbs=list
// +kubebuilder:rbac:groups=apps,resources=deployments;statefulsets;daemonsets,verbs=list

// clusterServiceVersionListGVK is listed unstructured so spec.version reaches the
// comparison as written. The typed OperatorVersion re-renders it as semver.
var clusterServiceVersionListGVK = operatorsv1alpha1.SchemeGroupVersion.WithKind(operatorsv1alpha1.ClusterServiceVersionKind + "List")

// ListVersionSources lists the ClusterServiceVersions of a namespace
func (l *KubeLister) ListVersionSources(ctx context.Context, namespace string) ([]model.VersionSource, error) {
	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(clusterServiceVersionListGVK)
	if err := l.Reader.List(ctx, list, listOptions(namespace, l.VersionSourceSelector)...); err != nil {
		return nil, fmt.Errorf("failed to list ClusterServiceVersions: %w", err)
	}

	sources := make([]model.VersionSource, 0, len(list.Items))
	for i := range list.Items {
		csv := &list.Items[i]
		version, found, err := unstructured.NestedString(csv.Object, "spec", "version")
		if err != nil {
			return nil, fmt.Errorf("ClusterServiceVersion %s: %w", csv.GetName(), err)
		}
		if !found || version == "" {
			return nil, fmt.Errorf("ClusterServiceVersion %s has no spec.version", csv.GetName())
		}
		sources = append(sources, model.VersionSource{
			Name:    csv.GetName(),
			Version: version,
		})
	}
	return sources, nil
}

// ListDeployments lists every configured workload kind of a namespace
func (l *KubeLister) ListDeployments(ctx context.Context, namespace string) ([]model.DeploymentRecord, error) {
	kinds := l.Kinds
	if len(kinds) == 0 {
		kinds = []string{KindDeployment}
	}

	var records []model.DeploymentRecord
	for _, kind := range kinds {
		workloads, err := l.listWorkloads(ctx, namespace, kind)
		if err != nil {
			return nil, err
		}
		for _, workload := range workloads {
			records = append(records, ToRecord(workload))
		}
	}
	return records, nil
}

func (l *KubeLister) listWorkloads(ctx context.Context, namespace, kind string) ([]WorkloadAdapter, error) {
	opts := listOptions(namespace, l.DeploymentSelector)

	switch kind {
	case KindDeployment:
		list := &v1.DeploymentList{}
		if err := l.Reader.List(ctx, list, opts...); err != nil {
			return nil, fmt.Errorf("failed to list Deployments: %w", err)
		}
		workloads := make([]WorkloadAdapter, 0, len(list.Items))
		for i := range list.Items {
			workloads = append(workloads, &DeploymentAdapter{Deployment: &list.Items[i]})
		}
		return workloads, nil

	case KindStatefulSet:
		list := &v1.StatefulSetList{}
		if err := l.Reader.List(ctx, list, opts...); err != nil {
			return nil, fmt.Errorf("failed to list StatefulSets: %w", err)
		}
		workloads := make([]WorkloadAdapter, 0, len(list.Items))
		for i := range list.Items {
			workloads = append(workloads, &StatefulSetAdapter{StatefulSet: &list.Items[i]})
		}
		return workloads, nil

	case KindDaemonSet:
		list := &v1.DaemonSetList{}
		if err := l.Reader.List(ctx, list, opts...); err != nil {
			return nil, fmt.Errorf("failed to list DaemonSets: %w", err)
		}
		workloads := make([]WorkloadAdapter, 0, len(list.Items))
		for i := range list.Items {
			workloads = append(workloads, &DaemonSetAdapter{DaemonSet: &list.Items[i]})
		}
		return workloads, nil

	default:
		return nil, fmt.Errorf("unsupported workload kind %q", kind)
	}
}

func listOptions(namespace string, selector labels.Selector) []client.ListOption {
	opts := []client.ListOption{client.InNamespace(namespace)}
	if selector != nil && !selector.Empty() {
		opts = append(opts, client.MatchingLabelsSelector{Selector: selector})
	}
	return opts
}
