package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/labels"

	"github.com/apptrail-sh/releasecheck/internal/reconciler"
	"github.com/apptrail-sh/releasecheck/internal/yamlutil"
)

// Config is the releasecheck configuration file
type Config struct {
	// ClusterID identifies the cluster in published reports (e.g., staging.stg01)
	ClusterID string   `yaml:"clusterID,omitempty"`
	Targets   []Target `yaml:"targets,omitempty"`
	Remotes   []Remote `yaml:"remotes,omitempty"`
}

// Target is one namespace to check and the annotation its workloads carry the release version in
type Target struct {
	Namespace     string `yaml:"namespace"`
	AnnotationKey string `yaml:"annotationKey"`

	// Kinds of workloads to check, Deployment when empty
	Kinds []string `yaml:"kinds,omitempty"`

	DeploymentSelector    string `yaml:"deploymentSelector,omitempty"`
	VersionSourceSelector string `yaml:"versionSourceSelector,omitempty"`
}

// Remote is a git branch to resolve to a commit SHA
type Remote struct {
	URL    string `yaml:"url"`
	Branch string `yaml:"branch"`
}

// Load reads and validates a configuration file
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yamlutil.Load(path, cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseTarget parses a "namespace=annotationKey" flag value
func ParseTarget(s string) (Target, error) {
	namespace, annotationKey, ok := strings.Cut(s, "=")
	namespace = strings.TrimSpace(namespace)
	annotationKey = strings.TrimSpace(annotationKey)
	if !ok || namespace == "" || annotationKey == "" {
		return Target{}, fmt.Errorf("invalid target %q: expected format namespace=annotationKey", s)
	}
	return Target{Namespace: namespace, AnnotationKey: annotationKey}, nil
}

// Validate reports every problem found in the configuration
func (c *Config) Validate() error {
	var errs []error
	for i, target := range c.Targets {
		if err := target.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("targets[%d]: %w", i, err))
		}
	}
	for i, remote := range c.Remotes {
		if remote.URL == "" {
			errs = append(errs, fmt.Errorf("remotes[%d]: url is required", i))
		}
		if remote.Branch == "" {
			errs = append(errs, fmt.Errorf("remotes[%d]: branch is required", i))
		}
	}
	return errors.Join(errs...)
}

func (t Target) Validate() error {
	var errs []error
	if t.Namespace == "" {
		errs = append(errs, errors.New("namespace is required"))
	}
	if t.AnnotationKey == "" {
		errs = append(errs, errors.New("annotationKey is required"))
	}
	for _, kind := range t.Kinds {
		if !slices.Contains(reconciler.SupportedKinds, kind) {
			errs = append(errs, fmt.Errorf("unsupported kind %q, expected one of %s", kind, strings.Join(reconciler.SupportedKinds, ", ")))
		}
	}
	if _, _, err := t.Selectors(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Selectors parses the target's label selectors. Empty selectors match everything.
func (t Target) Selectors() (deployments, versionSources labels.Selector, err error) {
	deployments, err = labels.Parse(t.DeploymentSelector)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid deploymentSelector: %w", err)
	}
	versionSources, err = labels.Parse(t.VersionSourceSelector)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid versionSourceSelector: %w", err)
	}
	return deployments, versionSources, nil
}
