package hooks

import (
	"context"

	"github.com/apptrail-sh/releasecheck/internal/model"
)

// ReportPublisher delivers a version report to an external system
type ReportPublisher interface {
	PublishReport(ctx context.Context, report model.VersionReport) error
}
