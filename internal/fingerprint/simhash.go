package fingerprint

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// shingleSize is the number of consecutive tokens hashed together. Shingles
// of two keep local word order visible to the fingerprint, so reorderings of
// whole sentences still register as changed bits.
const shingleSize = 2

// Simhash computes a 64-bit locality-sensitive fingerprint of the text.
// Similar inputs produce fingerprints with a small Hamming distance.
// The function is deterministic for identical normalized text.
func Simhash(text string) uint64 {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return 0
	}

	shingles := make(map[string]int)
	if len(tokens) < shingleSize {
		shingles[strings.Join(tokens, " ")] = 1
	} else {
		for i := 0; i+shingleSize <= len(tokens); i++ {
			shingles[strings.Join(tokens[i:i+shingleSize], " ")]++
		}
	}

	var counts [64]int
	for shingle, weight := range shingles {
		h := fnv.New64a()
		_, _ = h.Write([]byte(shingle))
		sum := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if sum&(1<<uint(bit)) != 0 {
				counts[bit] += weight
			} else {
				counts[bit] -= weight
			}
		}
	}

	var fp uint64
	for bit := 0; bit < 64; bit++ {
		if counts[bit] > 0 {
			fp |= 1 << uint(bit)
		}
	}
	return fp
}

// HammingDistance counts differing bits between two fingerprints.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
