// Package report renders version reports for humans and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/apptrail-sh/releasecheck/internal/model"
	"github.com/apptrail-sh/releasecheck/internal/yamlutil"
)

type Format string

const (
	FormatText Format = "text"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var separator = strings.Repeat("-", 40)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatYAML, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q, expected text, yaml or json", s)
	}
}

// Write renders reports to w in the given format
func Write(w io.Writer, format Format, reports []*model.VersionReport) error {
	switch format {
	case FormatText:
		for _, r := range reports {
			if err := WriteText(w, r); err != nil {
				return err
			}
		}
		return nil
	case FormatYAML:
		data, err := yamlutil.Marshal(reports)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(reports)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteText prints one block per deployment followed by the namespace summary
func WriteText(w io.Writer, r *model.VersionReport) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Namespace: %s (expected version %s from %s)\n", r.Namespace, r.ExpectedVersion, r.VersionSource)
	for _, result := range r.Results {
		b.WriteString(separator + "\n")
		fmt.Fprintf(&b, "Deployment: %s\n", result.Subject.Ref())
		b.WriteString(ResultLine(r.AnnotationKey, result) + "\n")
	}
	b.WriteString(separator + "\n")
	b.WriteString(SummaryLine(r) + "\n\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// ResultLine is the human readable match/mismatch statement for a result
func ResultLine(annotationKey string, result model.VersionComparisonResult) string {
	observed, _ := result.Observed()
	switch result.Status {
	case model.VersionStatusMatch:
		return fmt.Sprintf("Release version matches: %s", result.ExpectedVersion)
	case model.VersionStatusMismatch:
		return fmt.Sprintf("Release version mismatch: expected %s, found %s", result.ExpectedVersion, observed)
	default:
		return fmt.Sprintf("Release version annotation %s missing: expected %s", annotationKey, result.ExpectedVersion)
	}
}

func SummaryLine(r *model.VersionReport) string {
	return fmt.Sprintf("Summary for %s: %d checked, %d matched, %d mismatched, %d missing",
		r.Namespace, r.Summary.Total, r.Summary.Matched, r.Summary.Mismatched, r.Summary.Missing)
}
