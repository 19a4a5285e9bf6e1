// Package state implements the classification lifecycle of a document. It is
// the single writer of processing status and relevance fields; every status
// change flows through the transition table here.
package state

import (
	"fmt"

	"NewsFlow/internal/domain"
)

// transitions enumerates every legal status move. Anything absent is a bug in
// the caller, not a storage race.
var transitions = map[domain.Status][]domain.Status{
	domain.StatusPending:           {domain.StatusRelevanceChecking},
	domain.StatusRelevanceChecking: {domain.StatusIrrelevant, domain.StatusCategorizing, domain.StatusError},
	domain.StatusCategorizing:      {domain.StatusProcessed, domain.StatusError},
	domain.StatusError:             {domain.StatusRelevanceChecking, domain.StatusCategorizing, domain.StatusError},
	domain.StatusIrrelevant:        {},
	domain.StatusProcessed:         {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to domain.Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// guard returns an error describing an illegal transition attempt.
func guard(postID string, from, to domain.Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("document %s: illegal transition %s -> %s", postID, from, to)
	}
	return nil
}
