package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/apptrail-sh/releasecheck/internal/buildinfo"
	"github.com/apptrail-sh/releasecheck/internal/config"
	"github.com/apptrail-sh/releasecheck/internal/hooks"
	"github.com/apptrail-sh/releasecheck/internal/hooks/controlplane"
	"github.com/apptrail-sh/releasecheck/internal/hooks/pubsub"
	"github.com/apptrail-sh/releasecheck/internal/hooks/webhook"
	"github.com/apptrail-sh/releasecheck/internal/model"
	"github.com/apptrail-sh/releasecheck/internal/reconciler"
	"github.com/apptrail-sh/releasecheck/internal/report"
	"github.com/apptrail-sh/releasecheck/internal/watch"
	"github.com/apptrail-sh/releasecheck/internal/yamlutil"
)

// checkConfig holds the check command configuration
type checkConfig struct {
	configPath         string
	targets            []string
	kinds              []string
	output             string
	concurrency        int
	timeout            time.Duration
	watch              bool
	interval           time.Duration
	outputFile         string
	failOnDrift        bool
	failOnPublishError bool
	metricsTextfile    string
	clusterID          string
	controlPlaneURL    string
	pubsubTopic        string
	webhookURL         string
	webhookOnlyDrift   bool
	controlPlaneDrift  bool
}

func newCheckCommand() *cobra.Command {
	var cfg checkConfig

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare workload release-version annotations with the installed operator version",
		Example: `  releasecheck check --target product-a=product-a.io/installer-release-version
  releasecheck check --config releasecheck.yaml --fail-on-drift -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.configPath, "config", "", "Path to a releasecheck YAML configuration file")
	flags.StringArrayVar(&cfg.targets, "target", nil,
		"Namespace and release-version annotation key to check, as namespace=annotationKey (repeatable)")
	flags.StringSliceVar(&cfg.kinds, "kinds", []string{reconciler.KindDeployment},
		"Workload kinds checked for --target namespaces (Deployment, StatefulSet, DaemonSet)")
	flags.StringVarP(&cfg.output, "output", "o", string(report.FormatText), "Output format: text, yaml or json")
	flags.IntVar(&cfg.concurrency, "concurrency", 4, "Number of namespaces checked in parallel")
	flags.DurationVar(&cfg.timeout, "timeout", 0, "Deadline for one check of all targets, 0 disables it")
	flags.BoolVar(&cfg.watch, "watch", false, "Re-run the check every --interval until interrupted")
	flags.DurationVar(&cfg.interval, "interval", watch.DefaultConfig().Interval, "Interval between checks in --watch mode")
	flags.StringVar(&cfg.outputFile, "output-file", "", "Also save the reports of each check to this YAML file")
	flags.BoolVar(&cfg.failOnDrift, "fail-on-drift", false,
		"Exit with status 2 when any workload has a mismatched or missing release version")
	flags.BoolVar(&cfg.failOnPublishError, "fail-on-publish-error", false,
		"Fail the check when a report cannot be published")
	flags.StringVar(&cfg.metricsTextfile, "metrics-textfile", "",
		"Write prometheus metrics to this file (node-exporter textfile collector format)")
	flags.StringVar(&cfg.clusterID, "cluster-id", os.Getenv("CLUSTER_ID"),
		"Unique identifier for this cluster (e.g., staging.stg01)")
	flags.StringVar(&cfg.controlPlaneURL, "controlplane-url", "",
		"The URL reports are posted to (e.g., http://controlplane:3000/ingest/v1/releasecheck/reports)")
	flags.StringVar(&cfg.pubsubTopic, "pubsub-topic", os.Getenv("PUBSUB_TOPIC"),
		"Google Cloud Pub/Sub topic path (projects/<project>/topics/<topic>)")
	flags.StringVar(&cfg.webhookURL, "webhook-url", "", "Slack compatible incoming webhook that receives report summaries")
	flags.BoolVar(&cfg.controlPlaneDrift, "controlplane-only-drift", false,
		"Only post reports with drift to the control plane")
	flags.BoolVar(&cfg.webhookOnlyDrift, "webhook-only-drift", true, "Only send webhook summaries for reports with drift")

	return cmd
}

func runCheck(ctx context.Context, out io.Writer, cfg checkConfig) error {
	fileCfg, targets, err := loadTargets(cfg)
	if err != nil {
		return err
	}
	if cfg.clusterID == "" {
		cfg.clusterID = fileCfg.ClusterID
	}

	format, err := report.ParseFormat(cfg.output)
	if err != nil {
		return err
	}
	watchConfig, err := newWatchConfig(cfg)
	if err != nil {
		return err
	}

	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return fmt.Errorf("unable to load kubeconfig: %w", err)
	}
	k8sClient, err := client.New(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		return fmt.Errorf("unable to create kubernetes client: %w", err)
	}

	dispatcher, cleanup, err := setupPublishers(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var metrics *reconciler.Metrics
	registry := prometheus.NewRegistry()
	if cfg.metricsTextfile != "" {
		metrics = reconciler.NewMetrics(registry)
	}

	runOnce := func(ctx context.Context) (bool, error) {
		if cfg.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}

		reports, err := checkTargets(ctx, k8sClient, targets, cfg.concurrency)
		if err != nil {
			return false, err
		}

		if err := report.Write(out, format, reports); err != nil {
			return false, fmt.Errorf("failed to write reports: %w", err)
		}
		if cfg.outputFile != "" {
			if err := saveReports(cfg.outputFile, reports); err != nil {
				return false, err
			}
		}

		if metrics != nil {
			for _, r := range reports {
				metrics.Record(r)
			}
			if err := prometheus.WriteToTextfile(cfg.metricsTextfile, registry); err != nil {
				return false, fmt.Errorf("failed to write metrics textfile: %w", err)
			}
		}

		if err := dispatcher.Dispatch(ctx, reports); err != nil && cfg.failOnPublishError {
			return false, err
		}

		return hasDrift(reports), nil
	}

	if cfg.watch {
		loop := watch.NewLoop(watchConfig, func(ctx context.Context) error {
			_, err := runOnce(ctx)
			return err
		})
		loop.Start(ctx)
		return nil
	}

	drift, err := runOnce(ctx)
	if err != nil {
		return err
	}
	if drift && cfg.failOnDrift {
		return errDriftDetected
	}
	return nil
}

func newWatchConfig(cfg checkConfig) (watch.Config, error) {
	config := watch.DefaultConfig()
	if cfg.interval != 0 {
		config.Interval = cfg.interval
	}
	if cfg.watch && config.Interval <= 0 {
		return config, fmt.Errorf("invalid --interval %s: must be positive", cfg.interval)
	}
	return config, nil
}

// saveReports replaces path with the YAML rendering of reports
func saveReports(path string, reports []*model.VersionReport) error {
	if err := yamlutil.Save(path, reports); err != nil {
		return fmt.Errorf("failed to save reports to %s: %w", path, err)
	}
	return nil
}

// loadTargets merges the targets of the configuration file with --target flags
func loadTargets(cfg checkConfig) (*config.Config, []config.Target, error) {
	fileCfg := &config.Config{}
	if cfg.configPath != "" {
		loaded, err := config.Load(cfg.configPath)
		if err != nil {
			return nil, nil, err
		}
		fileCfg = loaded
	}

	targets := append([]config.Target(nil), fileCfg.Targets...)
	for _, value := range cfg.targets {
		target, err := config.ParseTarget(value)
		if err != nil {
			return nil, nil, err
		}
		target.Kinds = cfg.kinds
		if err := target.Validate(); err != nil {
			return nil, nil, fmt.Errorf("target %q: %w", value, err)
		}
		targets = append(targets, target)
	}

	if len(targets) == 0 {
		return nil, nil, fmt.Errorf("no targets configured: use --target namespace=annotationKey or --config")
	}
	return fileCfg, targets, nil
}

// checkTargets reconciles every target, in parallel up to concurrency. Reports keep
// the order of targets; the first failing target cancels the others.
func checkTargets(ctx context.Context, reader client.Reader, targets []config.Target, concurrency int) ([]*model.VersionReport, error) {
	reports := make([]*model.VersionReport, len(targets))

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, target := range targets {
		g.Go(func() error {
			deploymentSelector, versionSourceSelector, err := target.Selectors()
			if err != nil {
				return err
			}

			lister := &reconciler.KubeLister{
				Reader:                reader,
				Kinds:                 target.Kinds,
				DeploymentSelector:    deploymentSelector,
				VersionSourceSelector: versionSourceSelector,
			}
			versionReconciler := reconciler.NewVersionReconciler(lister, lister, ctrl.Log.WithName("reconciler"))

			r, err := versionReconciler.Reconcile(ctx, target.Namespace, target.AnnotationKey)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func hasDrift(reports []*model.VersionReport) bool {
	for _, r := range reports {
		if r.HasDrift() {
			return true
		}
	}
	return false
}

func setupPublishers(ctx context.Context, cfg checkConfig) (*hooks.Dispatcher, func(), error) {
	var publishers []hooks.ReportPublisher
	var cleanups []func()

	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	agentVersion := buildinfo.Version()

	if cfg.controlPlaneURL != "" {
		if cfg.clusterID == "" {
			return nil, cleanup, fmt.Errorf("cluster-id is required when controlplane-url is set")
		}
		cpPublisher := controlplane.NewHTTPPublisher(cfg.controlPlaneURL, cfg.clusterID, agentVersion, cfg.controlPlaneDrift)
		publishers = append(publishers, cpPublisher)
		cleanups = append(cleanups, func() { _ = cpPublisher.Close() })
		setupLog.Info("Control Plane publisher enabled",
			"endpoint", cfg.controlPlaneURL,
			"clusterID", cfg.clusterID)
	}

	if cfg.pubsubTopic != "" {
		if cfg.clusterID == "" {
			return nil, cleanup, fmt.Errorf("cluster-id is required when pubsub is enabled")
		}
		pubsubPublisher, err := pubsub.NewPubSubPublisher(ctx, cfg.pubsubTopic, cfg.clusterID, agentVersion)
		if err != nil {
			setupLog.Error(err, "unable to create Pub/Sub publisher",
				"hint", "Ensure valid credentials via Workload Identity, GOOGLE_APPLICATION_CREDENTIALS, or gcloud auth")
			return nil, cleanup, err
		}
		publishers = append(publishers, pubsubPublisher)
		cleanups = append(cleanups, pubsubPublisher.Stop)
		setupLog.Info("Google Pub/Sub publisher enabled",
			"topic", cfg.pubsubTopic,
			"clusterID", cfg.clusterID)
	}

	if cfg.webhookURL != "" {
		webhookPublisher := webhook.NewSummaryPublisher(cfg.webhookURL, cfg.clusterID, cfg.webhookOnlyDrift)
		publishers = append(publishers, webhookPublisher)
		cleanups = append(cleanups, func() { _ = webhookPublisher.Close() })
		setupLog.Info("Webhook summary publisher enabled", "onlyDrift", cfg.webhookOnlyDrift)
	}

	return hooks.NewDispatcher(publishers, ctrl.Log.WithName("hooks")), cleanup, nil
}
