// Package simhash fingerprints post texts so that near-identical posts can
// be counted. Accounts that repeat one template with small edits score a
// high near-duplicate ratio.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// DefaultThreshold is the Hamming distance at or below which two post
// fingerprints count as near-duplicates.
const DefaultThreshold = 3

// FingerprintPost fingerprints a post body. Case, links and mentions are
// normalised away and overlapping word pairs are hashed, so word order
// matters but single substitutions move only a few bits.
func FingerprintPost(text string) uint64 {
	words := normalizeWords(text)
	if len(words) < 2 {
		return fingerprintTokens(words)
	}
	return fingerprintTokens(makeShingles(words, 2))
}

// fingerprintTokens accumulates FNV-64a token hashes into a 64-bit
// SimHash.
func fingerprintTokens(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		hash := h.Sum64()

		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fingerprint uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}
	return fingerprint
}

// Distance returns the Hamming distance between two SimHash fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar returns true if the Hamming distance between two fingerprints
// is less than or equal to the threshold.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// DuplicateRatio returns the share of texts that are near-duplicates of an
// earlier text in the slice, in [0, 1]. Empty texts are ignored; fewer
// than two remaining texts yield 0.
func DuplicateRatio(texts []string, threshold int) float64 {
	var prints []uint64
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		prints = append(prints, FingerprintPost(t))
	}
	if len(prints) < 2 {
		return 0
	}

	dups := 0
	for i := 1; i < len(prints); i++ {
		for j := 0; j < i; j++ {
			if Similar(prints[i], prints[j], threshold) {
				dups++
				break
			}
		}
	}
	return float64(dups) / float64(len(prints))
}
