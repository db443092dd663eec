package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks recoverable environment failures (unreachable
	// mount, relay timeout). Callers retry with backoff.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks failures that must not be retried (rejected
	// recipient, bad credentials).
	ErrPermanent = errors.New("permanent failure")
	// ErrFile marks per-file processing failures; the pipeline records
	// them and continues with the next file.
	ErrFile = errors.New("file failure")
	// ErrConfiguration marks invalid or missing configuration. Fatal at
	// startup, before any loop is entered.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks missing resources (calibration file, ledger row).
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermanent reports whether err must never be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IsFileFailure reports whether err is scoped to a single input file.
func IsFileFailure(err error) bool {
	return errors.Is(err, ErrFile)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
