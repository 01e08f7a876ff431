package reconciler

import (
	v1 "k8s.io/api/apps/v1"

	"github.com/apptrail-sh/releasecheck/internal/model"
)

const (
	KindDeployment  = "Deployment"
	KindStatefulSet = "StatefulSet"
	KindDaemonSet   = "DaemonSet"
)

// SupportedKinds lists the workload kinds that can carry a release-version annotation
var SupportedKinds = []string{KindDeployment, KindStatefulSet, KindDaemonSet}

// WorkloadAdapter abstracts the metadata read from Deployments, StatefulSets, and DaemonSets
type WorkloadAdapter interface {
	GetName() string
	GetNamespace() string
	GetKind() string
	GetAnnotations() map[string]string
}

// ToRecord maps an adapter onto the DeploymentRecord snapshot used by the reconciler
func ToRecord(workload WorkloadAdapter) model.DeploymentRecord {
	var annotations map[string]string
	if src := workload.GetAnnotations(); src != nil {
		annotations = make(map[string]string, len(src))
		for k, v := range src {
			annotations[k] = v
		}
	}

	return model.DeploymentRecord{
		Kind:        workload.GetKind(),
		Name:        workload.GetName(),
		Namespace:   workload.GetNamespace(),
		Annotations: annotations,
	}
}

// DeploymentAdapter wraps a Deployment to implement WorkloadAdapter
type DeploymentAdapter struct {
	Deployment *v1.Deployment
}

func (d *DeploymentAdapter) GetName() string {
	return d.Deployment.Name
}

func (d *DeploymentAdapter) GetNamespace() string {
	return d.Deployment.Namespace
}

func (d *DeploymentAdapter) GetKind() string {
	return KindDeployment
}

func (d *DeploymentAdapter) GetAnnotations() map[string]string {
	return d.Deployment.Annotations
}

// StatefulSetAdapter wraps a StatefulSet to implement WorkloadAdapter
type StatefulSetAdapter struct {
	StatefulSet *v1.StatefulSet
}

func (s *StatefulSetAdapter) GetName() string {
	return s.StatefulSet.Name
}

func (s *StatefulSetAdapter) GetNamespace() string {
	return s.StatefulSet.Namespace
}

func (s *StatefulSetAdapter) GetKind() string {
	return KindStatefulSet
}

func (s *StatefulSetAdapter) GetAnnotations() map[string]string {
	return s.StatefulSet.Annotations
}

// DaemonSetAdapter wraps a DaemonSet to implement WorkloadAdapter
type DaemonSetAdapter struct {
	DaemonSet *v1.DaemonSet
}

func (d *DaemonSetAdapter) GetName() string {
	return d.DaemonSet.Name
}

func (d *DaemonSetAdapter) GetNamespace() string {
	return d.DaemonSet.Namespace
}

func (d *DaemonSetAdapter) GetKind() string {
	return KindDaemonSet
}

func (d *DaemonSetAdapter) GetAnnotations() map[string]string {
	return d.DaemonSet.Annotations
}
