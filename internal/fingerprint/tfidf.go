package fingerprint

import "math"

// Vector is a sparse TF-IDF term-weight vector normalized to unit length.
type Vector map[string]float64

// Vectorize builds the unit-length TF-IDF vector for one document's term
// frequencies against corpus document frequencies. docFreq counts in how many
// of the totalDocs corpus documents each term appears; terms missing from the
// corpus get the maximum IDF. Smoothing follows the usual add-one scheme so an
// empty corpus still yields usable weights.
func Vectorize(termFreq map[string]int, docFreq map[string]int, totalDocs int) Vector {
	if len(termFreq) == 0 {
		return Vector{}
	}

	v := make(Vector, len(termFreq))
	var norm float64
	for term, tf := range termFreq {
		idf := math.Log(float64(1+totalDocs)/float64(1+docFreq[term])) + 1
		w := (1 + math.Log(float64(tf))) * idf
		v[term] = w
		norm += w * w
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		return Vector{}
	}
	for term := range v {
		v[term] /= norm
	}
	return v
}

// Cosine returns the cosine similarity of two vectors. Result is in [0, 1]
// for the non-negative weights produced by Vectorize. Vectors need not be
// unit length, so centroid averages compare correctly too.
func Cosine(a, b Vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for term, w := range a {
		dot += w * b[term]
	}
	if dot == 0 {
		return 0
	}
	return dot / (norm(a) * norm(b))
}

func norm(v Vector) float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}
