package model

import (
	"time"

	"github.com/google/uuid"
)

const MessageTypeReleaseVersionReport = "RELEASE_VERSION_REPORT"

type SourceMetadata struct {
	ClusterID   string `json:"clusterId"`
	ToolVersion string `json:"toolVersion"`
}

// ReportEventPayload wraps a version report for delivery to external sinks
type ReportEventPayload struct {
	EventID     string         `json:"eventId"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Source      SourceMetadata `json:"source"`
	MessageType string         `json:"messageType"`
	Drift       bool           `json:"drift"`
	Report      VersionReport  `json:"report"`
}

func NewReportEventPayload(report VersionReport, clusterID, toolVersion string) ReportEventPayload {
	return ReportEventPayload{
		EventID:    uuid.New().String(),
		OccurredAt: time.Now().UTC(),
		Source: SourceMetadata{
			ClusterID:   clusterID,
			ToolVersion: toolVersion,
		},
		MessageType: MessageTypeReleaseVersionReport,
		Drift:       report.HasDrift(),
		Report:      report,
	}
}
