package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	// ErrDegraded marks a missing optional input; the affected feature is disabled.
	ErrDegraded = errors.New("degraded")
	// ErrItemSkipped marks a single frame or clip dropped from its output set.
	ErrItemSkipped = errors.New("item skipped")
)

// Severity describes how far a failure propagates through a run.
type Severity string

const (
	// SeverityFatal aborts the run.
	SeverityFatal Severity = "fatal"
	// SeverityDegraded disables one feature and the run continues.
	SeverityDegraded Severity = "degraded"
	// SeverityItem drops one item and the run continues.
	SeverityItem Severity = "item"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to the severity policy the pipeline applies.
func Classify(err error) Severity {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrItemSkipped):
		return SeverityItem
	case errors.Is(err, ErrDegraded):
		return SeverityDegraded
	default:
		return SeverityFatal
	}
}

// IsPerItem reports whether err only affects a single frame or clip.
func IsPerItem(err error) bool { return Classify(err) == SeverityItem }

// IsDegraded reports whether err disables a feature without aborting the run.
func IsDegraded(err error) bool { return Classify(err) == SeverityDegraded }

// Hint returns a short next-step suggestion for an error marker.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrExternalTool):
		return "check that ffmpeg/ffprobe are installed and the source file is readable"
	case errors.Is(err, ErrConfiguration):
		return "review the ridereel config file"
	case errors.Is(err, ErrValidation):
		return "re-run the earlier stage that produces the missing input"
	case errors.Is(err, ErrNotFound):
		return "verify the project paths"
	case errors.Is(err, ErrTimeout):
		return "retry the stage; the external tool did not respond in time"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
