package domain

import "fmt"

// Status is the processing state of a Document. It is persisted as a string
// but handled as a closed set of variants so that transition checks stay
// exhaustive at compile sites.
type Status int

const (
	StatusPending Status = iota
	StatusRelevanceChecking
	StatusIrrelevant
	StatusCategorizing
	StatusProcessed
	StatusError
)

var statusNames = map[Status]string{
	StatusPending:           "pending",
	StatusRelevanceChecking: "relevance_checking",
	StatusIrrelevant:        "irrelevant",
	StatusCategorizing:      "categorizing",
	StatusProcessed:         "processed",
	StatusError:             "error",
}

// String returns the persisted column value for the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether the document never leaves this state on its own.
// Error is retryable and therefore not terminal.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusIrrelevant
}

// ParseStatus maps a stored column value back to a Status.
func ParseStatus(value string) (Status, error) {
	for status, name := range statusNames {
		if name == value {
			return status, nil
		}
	}
	return StatusPending, fmt.Errorf("unknown document status %q", value)
}
