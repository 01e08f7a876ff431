package controlplane

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/apptrail-sh/releasecheck/internal/model"
)

// IdempotencyKeyHeader carries the event ID so retried posts of one report are deduplicated
const IdempotencyKeyHeader = "Idempotency-Key"

// HTTPPublisher posts version reports to the AppTrail Control Plane
type HTTPPublisher struct {
	client      *resty.Client
	endpoint    string
	clusterID   string
	toolVersion string
	// OnlyDrift skips reports where every workload matches
	OnlyDrift bool
}

func NewHTTPPublisher(endpoint, clusterID, toolVersion string, onlyDrift bool) *HTTPPublisher {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second)

	return &HTTPPublisher{
		client:      client,
		endpoint:    endpoint,
		clusterID:   clusterID,
		toolVersion: toolVersion,
		OnlyDrift:   onlyDrift,
	}
}

// Close releases the underlying HTTP client
func (p *HTTPPublisher) Close() error {
	return p.client.Close()
}

// PublishReport posts the report wrapped in a RELEASE_VERSION_REPORT event
func (p *HTTPPublisher) PublishReport(ctx context.Context, report model.VersionReport) error {
	event := model.NewReportEventPayload(report, p.clusterID, p.toolVersion)
	logger := log.FromContext(ctx).WithValues(
		"endpoint", p.endpoint,
		"eventID", event.EventID,
		"namespace", report.Namespace,
		"annotationKey", report.AnnotationKey)

	if p.OnlyDrift && !event.Drift {
		logger.V(1).Info("Skipping control plane report without drift")
		return nil
	}

	var errorResponse map[string]any
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(IdempotencyKeyHeader, event.EventID).
		SetBody(event).
		SetError(&errorResponse).
		Post(p.endpoint)
	if err != nil {
		logger.Error(err, "Failed to post report to control plane")
		return fmt.Errorf("failed to post %s report to control plane: %w", report.Namespace, err)
	}

	if !resp.IsSuccess() {
		logger.Error(nil, "Control plane rejected report",
			"statusCode", resp.StatusCode(),
			"error", errorResponse)
		return fmt.Errorf("control plane rejected %s report with status %d: %s", report.Namespace, resp.StatusCode(), resp.String())
	}

	logger.Info("Report published to control plane",
		"expectedVersion", report.ExpectedVersion,
		"drift", event.Drift,
		"mismatched", report.Summary.Mismatched,
		"missing", report.Summary.Missing)
	return nil
}
