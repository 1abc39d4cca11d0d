package security

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MapColonies/jobnik/pkg/core"
)

// Security limits and configuration
const (
	// MaxStageTypeLength is the maximum length for stage types
	MaxStageTypeLength = 255

	// MaxJobNameLength is the maximum length for job names
	MaxJobNameLength = 255

	// MaxPayloadSize is the maximum size in bytes for data and userMetadata (1MB)
	MaxPayloadSize = 1 << 20

	// MaxAttempts is the hard limit for task attempts
	MaxAttempts = 100

	// MaxTasksPerRequest caps a single CreateTasks call
	MaxTasksPerRequest = 10000

	// MaxConcurrency is the hard limit for worker concurrency
	MaxConcurrency = 1000

	// MaxErrorMessageLength is the maximum length for logged error messages
	MaxErrorMessageLength = 4096
)

// validStageType matches alphanumeric, hyphens, underscores, and dots
var validStageType = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateStageType validates a stage type used for dequeue routing
func ValidateStageType(stageType string) error {
	if stageType == "" {
		return core.Invalid("type", "must not be empty")
	}
	if len(stageType) > MaxStageTypeLength {
		return core.Invalid("type", "too long")
	}
	if !validStageType.MatchString(stageType) {
		return core.Invalid("type", "must be alphanumeric and start with a letter")
	}
	return nil
}

// ValidateJobName validates a job's display name
func ValidateJobName(name string) error {
	if strings.TrimSpace(name) == "" {
		return core.Invalid("name", "must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxJobNameLength {
		return core.Invalid("name", "too long")
	}
	for _, r := range name {
		if r < 32 || r == 127 {
			return core.Invalid("name", "contains control characters")
		}
	}
	return nil
}

// ValidateID checks that id is a UUID
func ValidateID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return core.Invalid(field, "must be a UUID")
	}
	return nil
}

// ValidatePayload checks that an optional JSON document is well formed and within limits
func ValidatePayload(field string, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	if len(raw) > MaxPayloadSize {
		return core.Invalid(field, "exceeds size limit")
	}
	if !json.Valid(raw) {
		return core.Invalid(field, "is not valid JSON")
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for logging
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampAttempts ensures a task's attempt budget is within limits
func ClampAttempts(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxAttempts {
		return MaxAttempts
	}
	return n
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}
