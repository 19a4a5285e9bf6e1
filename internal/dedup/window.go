package dedup

import (
	"time"

	"NewsFlow/internal/fingerprint"
)

// entry is one admitted document remembered for duplicate comparison.
type entry struct {
	postID  string
	source  string
	simhash uint64
	terms   map[string]int
	seenAt  time.Time
}

// window is the bounded recent-document history backing both filter stages.
// It evicts by capacity and by age, and maintains document frequencies for
// the terms of its members so TF-IDF vectors can be computed against the
// rolling corpus. Mutated only during ingestion runs, which the coordinator
// never overlaps.
type window struct {
	entries  []entry
	capacity int
	maxAge   time.Duration
	docFreq  map[string]int
}

func newWindow(capacity int, maxAge time.Duration) *window {
	return &window{
		capacity: capacity,
		maxAge:   maxAge,
		docFreq:  make(map[string]int),
	}
}

// add admits an entry, evicting the oldest members first when the window is
// full. Unbounded growth here would be a leak, not a feature.
func (w *window) add(e entry, now time.Time) {
	w.pruneExpired(now)
	for len(w.entries) >= w.capacity && len(w.entries) > 0 {
		w.evictOldest()
	}

	w.entries = append(w.entries, e)
	for term := range e.terms {
		w.docFreq[term]++
	}
}

// remove drops the entry with the given post id, releasing its term counts.
func (w *window) remove(postID string) {
	for i, e := range w.entries {
		if e.postID != postID {
			continue
		}
		w.entries = append(w.entries[:i], w.entries[i+1:]...)
		w.releaseTerms(e)
		return
	}
}

func (w *window) evictOldest() {
	oldest := w.entries[0]
	w.entries = w.entries[1:]
	w.releaseTerms(oldest)
}

func (w *window) releaseTerms(e entry) {
	for term := range e.terms {
		if w.docFreq[term] <= 1 {
			delete(w.docFreq, term)
		} else {
			w.docFreq[term]--
		}
	}
}

func (w *window) pruneExpired(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	for len(w.entries) > 0 && w.entries[0].seenAt.Before(cutoff) {
		w.evictOldest()
	}
}

// recent returns members seen within maxAge of now, newest last.
func (w *window) recent(now time.Time, maxAge time.Duration) []entry {
	cutoff := now.Add(-maxAge)
	var out []entry
	for _, e := range w.entries {
		if !e.seenAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// vectorize builds the TF-IDF vector of the given term frequencies against
// the window's rolling corpus.
func (w *window) vectorize(terms map[string]int) fingerprint.Vector {
	return fingerprint.Vectorize(terms, w.docFreq, len(w.entries))
}

func (w *window) size() int { return len(w.entries) }
