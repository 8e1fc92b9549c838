package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// error classes shared by every pipeline stage
var (
	ErrInput       = errors.New("input error")
	ErrBackend     = errors.New("backend error")
	ErrIntegrity   = errors.New("integrity error")
	ErrPersistence = errors.New("persistence error")
	ErrCancelled   = errors.New("cancelled")
	ErrTransient   = errors.New("transient failure")
)

// Wrap tags err with marker and a "stage: operation: message" detail so the
// orchestrator can classify it later with errors.Is.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrBackend
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Input is shorthand for Wrap(ErrInput, ...).
func Input(stage, message string, err error) error {
	return Wrap(ErrInput, stage, "", message, err)
}

// Integrity is shorthand for Wrap(ErrIntegrity, ...).
func Integrity(stage, message string) error {
	return Wrap(ErrIntegrity, stage, "", message, nil)
}

// Kind reports the class name recorded in run diagnostics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrInput):
		return "input"
	case errors.Is(err, ErrBackend), errors.Is(err, ErrTransient):
		return "backend"
	default:
		return "unknown"
	}
}

// IsTransient reports whether a backend error is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrInput) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

var transientHints = []string{
	"429",
	"rate limit",
	"too many requests",
	"500 internal",
	"502",
	"503",
	"504",
	"overloaded",
	"timeout",
	"temporarily unavailable",
	"connection reset",
	"connection refused",
	"eof",
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
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
