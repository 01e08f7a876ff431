package hooks

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/apptrail-sh/releasecheck/internal/model"
)

// Dispatcher publishes every report to every registered publisher
type Dispatcher struct {
	publishers []ReportPublisher
	log        logr.Logger
}

func NewDispatcher(publishers []ReportPublisher, log logr.Logger) *Dispatcher {
	return &Dispatcher{
		publishers: publishers,
		log:        log,
	}
}

// Len returns the number of registered publishers
func (d *Dispatcher) Len() int {
	return len(d.publishers)
}

// Dispatch publishes reports in order. A failing publisher does not stop the
// others; all failures are returned joined.
func (d *Dispatcher) Dispatch(ctx context.Context, reports []*model.VersionReport) error {
	var errs []error
	for _, report := range reports {
		d.log.V(1).Info("Publishing version report",
			"namespace", report.Namespace,
			"expectedVersion", report.ExpectedVersion,
			"publishers", len(d.publishers))

		for _, publisher := range d.publishers {
			if err := publisher.PublishReport(ctx, *report); err != nil {
				d.log.Error(err, "failed to publish report", "namespace", report.Namespace)
				errs = append(errs, fmt.Errorf("publish report for %s: %w", report.Namespace, err))
			}
		}
	}
	return errors.Join(errs...)
}
