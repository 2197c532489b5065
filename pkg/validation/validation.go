package validation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	MinWorkers = 1
	MaxWorkers = 20

	MinPollInterval = 100 * time.Millisecond
	MaxPollInterval = 10 * time.Minute
)

// ValidateWorkerCount checks how many lectures may be watched concurrently.
func ValidateWorkerCount(workers int) error {
	if workers < MinWorkers || workers > MaxWorkers {
		return fmt.Errorf("worker count must be between %d and %d, got %d", MinWorkers, MaxWorkers, workers)
	}
	return nil
}

// ValidateLectureID checks that id is a UUID as issued by the backend.
func ValidateLectureID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("lecture ID must be a UUID, got %q", id)
	}
	return nil
}

func ValidatePollInterval(d time.Duration) error {
	if d < MinPollInterval || d > MaxPollInterval {
		return fmt.Errorf("poll interval must be between %s and %s, got %s", MinPollInterval, MaxPollInterval, d)
	}
	return nil
}

func ValidateNonEmptyString(fieldName, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}
