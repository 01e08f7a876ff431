package reconciler

import (
	"context"
	"errors"

	"github.com/blang/semver/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	olmversion "github.com/operator-framework/api/pkg/lib/version"
	operatorsv1alpha1 "github.com/operator-framework/api/pkg/operators/v1alpha1"
	v1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	"github.com/apptrail-sh/releasecheck/internal/model"
)

func newTestScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	Expect(clientgoscheme.AddToScheme(scheme)).To(Succeed())
	Expect(operatorsv1alpha1.AddToScheme(scheme)).To(Succeed())
	return scheme
}

func newCSV(namespace, name, version string) *operatorsv1alpha1.ClusterServiceVersion {
	return &operatorsv1alpha1.ClusterServiceVersion{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: operatorsv1alpha1.ClusterServiceVersionSpec{
			Version: olmversion.OperatorVersion{Version: semver.MustParse(version)},
		},
	}
}

// newUnstructuredCSV keeps spec.version as written. It must be served by a client
// whose scheme does not register the typed CSV, which would reparse the version.
func newUnstructuredCSV(namespace, name, version string) *unstructured.Unstructured {
	csv := &unstructured.Unstructured{}
	csv.SetGroupVersionKind(operatorsv1alpha1.SchemeGroupVersion.WithKind(operatorsv1alpha1.ClusterServiceVersionKind))
	csv.SetNamespace(namespace)
	csv.SetName(name)
	if version != "" {
		Expect(unstructured.SetNestedField(csv.Object, version, "spec", "version")).To(Succeed())
	}
	return csv
}

func newCoreScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	Expect(clientgoscheme.AddToScheme(scheme)).To(Succeed())
	return scheme
}

func objectMeta(namespace, name string, lbls, annotations map[string]string) metav1.ObjectMeta {
	return metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: lbls, Annotations: annotations}
}

var _ = Describe("KubeLister", func() {
	const namespace = "product-a"

	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("maps ClusterServiceVersions in the namespace to version sources", func() {
		c := fake.NewClientBuilder().WithScheme(newTestScheme()).WithObjects(
			newCSV(namespace, "product-a.v2.9.0", "2.9.0"),
			newCSV("product-b", "product-b.v1.0.0", "1.0.0"),
		).Build()

		lister := &KubeLister{Reader: c}
		sources, err := lister.ListVersionSources(ctx, namespace)
		Expect(err).NotTo(HaveOccurred())
		Expect(sources).To(Equal([]model.VersionSource{{Name: "product-a.v2.9.0", Version: "2.9.0"}}))
	})

	It("returns no version sources for an empty namespace", func() {
		c := fake.NewClientBuilder().WithScheme(newTestScheme()).Build()

		lister := &KubeLister{Reader: c}
		sources, err := lister.ListVersionSources(ctx, namespace)
		Expect(err).NotTo(HaveOccurred())
		Expect(sources).To(BeEmpty())
	})

	It("keeps spec.version exactly as declared", func() {
		c := fake.NewClientBuilder().WithScheme(newCoreScheme()).WithObjects(
			newUnstructuredCSV(namespace, "product-a.v2.9", "v2.9"),
			&v1.Deployment{ObjectMeta: objectMeta(namespace, "api", nil, map[string]string{"rel": "v2.9"})},
			&v1.Deployment{ObjectMeta: objectMeta(namespace, "worker", nil, map[string]string{"rel": "2.9.0"})},
		).Build()

		lister := &KubeLister{Reader: c}
		sources, err := lister.ListVersionSources(ctx, namespace)
		Expect(err).NotTo(HaveOccurred())
		Expect(sources).To(Equal([]model.VersionSource{{Name: "product-a.v2.9", Version: "v2.9"}}))

		report, err := NewVersionReconciler(lister, lister, GinkgoLogr).Reconcile(ctx, namespace, "rel")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.ExpectedVersion).To(Equal("v2.9"))
		statuses := map[string]model.VersionStatus{}
		for _, result := range report.Results {
			statuses[result.Subject.Name] = result.Status
		}
		Expect(statuses).To(Equal(map[string]model.VersionStatus{
			"api":    model.VersionStatusMatch,
			"worker": model.VersionStatusMismatch,
		}))
	})

	It("compares versions that are not semver", func() {
		c := fake.NewClientBuilder().WithScheme(newCoreScheme()).WithObjects(
			newUnstructuredCSV(namespace, "product-a.nightly", "nightly-2024.06.01"),
			&v1.Deployment{ObjectMeta: objectMeta(namespace, "api", nil, map[string]string{"rel": "nightly-2024.06.01"})},
		).Build()

		lister := &KubeLister{Reader: c}
		report, err := NewVersionReconciler(lister, lister, GinkgoLogr).Reconcile(ctx, namespace, "rel")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.ExpectedVersion).To(Equal("nightly-2024.06.01"))
		Expect(report.Results).To(HaveLen(1))
		Expect(report.Results[0].Status).To(Equal(model.VersionStatusMatch))
	})

	It("rejects a ClusterServiceVersion without spec.version", func() {
		c := fake.NewClientBuilder().WithScheme(newCoreScheme()).WithObjects(
			newUnstructuredCSV(namespace, "product-a.broken", ""),
		).Build()

		lister := &KubeLister{Reader: c}
		_, err := lister.ListVersionSources(ctx, namespace)
		Expect(err).To(MatchError(ContainSubstring("has no spec.version")))
	})

	It("filters version sources by label selector", func() {
		selected := newCSV(namespace, "product-a.v2.9.0", "2.9.0")
		selected.Labels = map[string]string{"product": "a"}
		c := fake.NewClientBuilder().WithScheme(newTestScheme()).WithObjects(
			selected,
			newCSV(namespace, "dependency.v0.1.0", "0.1.0"),
		).Build()

		lister := &KubeLister{Reader: c, VersionSourceSelector: labels.SelectorFromSet(labels.Set{"product": "a"})}
		sources, err := lister.ListVersionSources(ctx, namespace)
		Expect(err).NotTo(HaveOccurred())
		Expect(sources).To(HaveLen(1))
		Expect(sources[0].Version).To(Equal("2.9.0"))
	})

	It("lists only Deployments by default", func() {
		c := fake.NewClientBuilder().WithScheme(newTestScheme()).WithObjects(
			&v1.Deployment{ObjectMeta: objectMeta(namespace, "api", nil, map[string]string{"rel": "2.9.0"})},
			&v1.Deployment{ObjectMeta: objectMeta(namespace, "worker", nil, nil)},
			&v1.StatefulSet{ObjectMeta: objectMeta(namespace, "db", nil, nil)},
			&v1.Deployment{ObjectMeta: objectMeta("product-b", "api", nil, nil)},
		).Build()

		lister := &KubeLister{Reader: c}
		records, err := lister.ListDeployments(ctx, namespace)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(ConsistOf(
			model.DeploymentRecord{Kind: KindDeployment, Name: "api", Namespace: namespace, Annotations: map[string]string{"rel": "2.9.0"}},
			model.DeploymentRecord{Kind: KindDeployment, Name: "worker", Namespace: namespace},
		))
	})

	It("emits kinds in the configured order", func() {
		c := fake.NewClientBuilder().WithScheme(newTestScheme()).WithObjects(
			&v1.Deployment{ObjectMeta: objectMeta(namespace, "api", nil, nil)},
			&v1.StatefulSet{ObjectMeta: objectMeta(namespace, "db", nil, nil)},
			&v1.DaemonSet{ObjectMeta: objectMeta(namespace, "agent", nil, nil)},
		).Build()

		lister := &KubeLister{Reader: c, Kinds: []string{KindDaemonSet, KindStatefulSet, KindDeployment}}
		records, err := lister.ListDeployments(ctx, namespace)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(3))
		Expect(records[0].Ref()).To(Equal("DaemonSet/agent"))
		Expect(records[1].Ref()).To(Equal("StatefulSet/db"))
		Expect(records[2].Ref()).To(Equal("Deployment/api"))
	})

	It("filters deployments by label selector", func() {
		c := fake.NewClientBuilder().WithScheme(newTestScheme()).WithObjects(
			&v1.Deployment{ObjectMeta: objectMeta(namespace, "operator", map[string]string{"app.kubernetes.io/part-of": "product-a"}, nil)},
			&v1.Deployment{ObjectMeta: objectMeta(namespace, "sidecar", nil, nil)},
		).Build()

		selector, err := labels.Parse("app.kubernetes.io/part-of=product-a")
		Expect(err).NotTo(HaveOccurred())

		lister := &KubeLister{Reader: c, DeploymentSelector: selector}
		records, err := lister.ListDeployments(ctx, namespace)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].Name).To(Equal("operator"))
	})

	It("rejects unsupported kinds", func() {
		c := fake.NewClientBuilder().WithScheme(newTestScheme()).Build()

		lister := &KubeLister{Reader: c, Kinds: []string{"CronJob"}}
		_, err := lister.ListDeployments(ctx, namespace)
		Expect(err).To(MatchError(ContainSubstring("unsupported workload kind")))
	})

	It("surfaces client errors through the reconciler as ErrListingFailed", func() {
		cause := errors.New("the server has asked for the client to provide credentials")
		c := fake.NewClientBuilder().WithScheme(newTestScheme()).WithInterceptorFuncs(interceptor.Funcs{
			List: func(_ context.Context, _ client.WithWatch, _ client.ObjectList, _ ...client.ListOption) error {
				return cause
			},
		}).Build()

		lister := &KubeLister{Reader: c}
		reconciler := NewVersionReconciler(lister, lister, GinkgoLogr)
		_, err := reconciler.Reconcile(ctx, namespace, "rel")
		Expect(err).To(MatchError(ErrListingFailed))
		Expect(errors.Is(err, cause)).To(BeTrue())
	})

	It("drives a full reconciliation against the cluster objects", func() {
		c := fake.NewClientBuilder().WithScheme(newTestScheme()).WithObjects(
			newCSV(namespace, "product-a.v2.9.0", "2.9.0"),
			&v1.Deployment{ObjectMeta: objectMeta(namespace, "api", nil, map[string]string{"rel": "2.9.0"})},
		).Build()

		lister := &KubeLister{Reader: c}
		reconciler := NewVersionReconciler(lister, lister, GinkgoLogr)
		report, err := reconciler.Reconcile(ctx, namespace, "rel")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Results).To(HaveLen(1))
		Expect(report.Results[0].Status).To(Equal(model.VersionStatusMatch))
	})
})

var _ = Describe("ToRecord", func() {
	It("copies annotations so the snapshot is independent of the object", func() {
		deploy := &v1.Deployment{ObjectMeta: objectMeta("ns", "api", nil, map[string]string{"rel": "1.0.0"})}

		record := ToRecord(&DeploymentAdapter{Deployment: deploy})
		deploy.Annotations["rel"] = "2.0.0"

		Expect(record.Annotations).To(HaveKeyWithValue("rel", "1.0.0"))
		Expect(record.Kind).To(Equal(KindDeployment))
		Expect(record.Namespace).To(Equal("ns"))
	})
})
