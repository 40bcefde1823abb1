// Package fingerprint computes and persists per-unit fingerprints: digests of
// a translation unit's fully preprocessed output.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is the hex SHA-256 of a unit's preprocessed output. Two units
// are unchanged iff their fingerprints are byte-equal.
type Fingerprint string

// Sum fingerprints preprocessed output.
func Sum(preprocessed []byte) Fingerprint {
	h := sha256.Sum256(preprocessed)
	return Fingerprint(hex.EncodeToString(h[:]))
}

func (f Fingerprint) String() string { return string(f) }

// Short returns an abbreviated form for logs.
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}

// Set maps a unit's relative path to its fingerprint.
type Set map[string]Fingerprint

// Clone returns a copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Commit computes the set to persist after a build. A unit keeps its fresh
// fingerprint iff no job was scheduled for it, or its job succeeded. Units
// whose job failed are left out entirely so the next build treats them as
// changed regardless of what their fingerprint will be.
//
// jobSucceeded holds one entry per scheduled unit.
func Commit(fresh Set, jobSucceeded map[string]bool) Set {
	out := make(Set, len(fresh))
	for rel, fp := range fresh {
		ok, scheduled := jobSucceeded[rel]
		if scheduled && !ok {
			continue
		}
		out[rel] = fp
	}
	return out
}
