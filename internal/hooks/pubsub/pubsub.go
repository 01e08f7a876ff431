package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub/v2"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/apptrail-sh/releasecheck/internal/model"
)

// PubSubPublisher sends version reports to Google Cloud Pub/Sub
type PubSubPublisher struct {
	client      *pubsub.Client
	publisher   *pubsub.Publisher
	topicPath   string
	clusterID   string
	toolVersion string
}

// ParseTopicPath parses a full Pub/Sub topic path and returns projectID and topicID.
// Expected format: projects/<project>/topics/<topic>
func ParseTopicPath(topicPath string) (projectID, topicID string, err error) {
	parts := strings.Split(topicPath, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != "topics" || parts[1] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("invalid topic path %q: expected format projects/<project>/topics/<topic>", topicPath)
	}
	return parts[1], parts[3], nil
}

// NewPubSubPublisher creates a new Google Cloud Pub/Sub publisher
//
// Authentication is handled via Application Default Credentials (ADC):
//   - Workload Identity (GKE): Auto-detected from metadata server (recommended)
//   - Service Account JSON key: Set GOOGLE_APPLICATION_CREDENTIALS env var
//   - Default credentials: gcloud auth application-default login
func NewPubSubPublisher(ctx context.Context, topicPath, clusterID, toolVersion string) (*PubSubPublisher, error) {
	projectID, topicID, err := ParseTopicPath(topicPath)
	if err != nil {
		return nil, err
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	// Reports for the same namespace must be delivered in the order they were produced.
	// The subscription must also have message ordering enabled.
	publisher := client.Publisher(topicID)
	publisher.EnableMessageOrdering = true

	return &PubSubPublisher{
		client:      client,
		publisher:   publisher,
		topicPath:   topicPath,
		clusterID:   clusterID,
		toolVersion: toolVersion,
	}, nil
}

// NewMessage builds the Pub/Sub message carrying a report
func NewMessage(report model.VersionReport, clusterID, toolVersion string) (*pubsub.Message, error) {
	event := model.NewReportEventPayload(report, clusterID, toolVersion)

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	attributes := map[string]string{
		"cluster_name":     clusterID,
		"namespace":        report.Namespace,
		"event_id":         event.EventID,
		"event_type":       "release_version_report",
		"expected_version": report.ExpectedVersion,
		"drift":            strconv.FormatBool(event.Drift),
	}

	return &pubsub.Message{
		Data:       data,
		Attributes: attributes,
		// Format: cluster/namespace
		OrderingKey: fmt.Sprintf("%s/%s", clusterID, report.Namespace),
	}, nil
}

// PublishReport sends a version report to Google Cloud Pub/Sub
func (p *PubSubPublisher) PublishReport(ctx context.Context, report model.VersionReport) error {
	logger := log.FromContext(ctx)

	msg, err := NewMessage(report, p.clusterID, p.toolVersion)
	if err != nil {
		logger.Error(err, "Failed to build message", "namespace", report.Namespace)
		return err
	}

	logger.Info("Publishing report to Google Pub/Sub",
		"topic", p.topicPath,
		"eventID", msg.Attributes["event_id"],
		"orderingKey", msg.OrderingKey,
		"namespace", report.Namespace,
		"expectedVersion", report.ExpectedVersion,
	)

	result := p.publisher.Publish(ctx, msg)

	msgID, err := result.Get(ctx)
	if err != nil {
		logger.Error(err, "Failed to publish report to Pub/Sub",
			"topic", p.topicPath,
			"eventID", msg.Attributes["event_id"],
		)
		// Ordered publishing pauses the key after a failure until resumed
		p.publisher.ResumePublish(msg.OrderingKey)
		return fmt.Errorf("failed to publish report to pubsub: %w", err)
	}

	logger.Info("Report successfully published to Google Pub/Sub",
		"topic", p.topicPath,
		"messageID", msgID,
		"namespace", report.Namespace,
	)

	return nil
}

// Stop stops the publisher and closes the client
func (p *PubSubPublisher) Stop() {
	if p.publisher != nil {
		p.publisher.Stop()
	}
	if p.client != nil {
		_ = p.client.Close()
	}
}
