package webhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/apptrail-sh/releasecheck/internal/model"
	"github.com/apptrail-sh/releasecheck/internal/report"
)

// Message is the Slack compatible incoming webhook body
type Message struct {
	Text string `json:"text"`
}

// SummaryPublisher posts a text summary of each report to an incoming webhook
type SummaryPublisher struct {
	client    *resty.Client
	url       string
	clusterID string
	// OnlyDrift skips reports where every workload matches
	OnlyDrift bool
}

func NewSummaryPublisher(url, clusterID string, onlyDrift bool) *SummaryPublisher {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)

	return &SummaryPublisher{
		client:    client,
		url:       url,
		clusterID: clusterID,
		OnlyDrift: onlyDrift,
	}
}

// Close releases the underlying HTTP client
func (p *SummaryPublisher) Close() error {
	return p.client.Close()
}

func (p *SummaryPublisher) PublishReport(ctx context.Context, r model.VersionReport) error {
	logger := log.FromContext(ctx)

	if p.OnlyDrift && !r.HasDrift() {
		logger.V(1).Info("Skipping webhook summary without drift", "namespace", r.Namespace)
		return nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(Message{Text: Summarize(p.clusterID, r)}).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("failed to send webhook summary: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook returned error status %d: %s", resp.StatusCode(), resp.String())
	}

	logger.Info("Webhook summary sent", "namespace", r.Namespace, "statusCode", resp.StatusCode())
	return nil
}

// Summarize renders a report as a short message listing only drifted workloads
func Summarize(clusterID string, r model.VersionReport) string {
	var b strings.Builder

	status := ":white_check_mark:"
	if r.HasDrift() {
		status = ":warning:"
	}
	header := r.Namespace
	if clusterID != "" {
		header = clusterID + "/" + r.Namespace
	}
	fmt.Fprintf(&b, "%s *%s* release version %s\n", status, header, r.ExpectedVersion)
	b.WriteString(report.SummaryLine(&r))

	for _, result := range r.Results {
		if result.Status == model.VersionStatusMatch {
			continue
		}
		fmt.Fprintf(&b, "\n• %s: %s", result.Subject.Ref(), report.ResultLine(r.AnnotationKey, result))
	}
	return b.String()
}
