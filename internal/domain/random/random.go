// Package random holds the randomness primitives used to build trial sequences.
//
// Everything that draws random numbers takes a Rand so callers can inject a
// seeded source and get reproducible sessions.
package random

import (
	"math/rand"
	"time"
)

// Rand is the subset of *math/rand.Rand the experiment code relies on.
type Rand interface {
	// Intn returns a uniform integer in [0, n).
	Intn(n int) int
	// Float64 returns a uniform float in [0.0, 1.0).
	Float64() float64
}

// New returns a deterministic source for the given seed.
func New(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed)) //nolint:gosec // experiment randomization, not security
}

// NewSeed returns a seed derived from the wall clock. Callers that want to
// reproduce a session should record it.
func NewSeed() int64 {
	return time.Now().UnixNano()
}

// Shuffle permutes s in place with the Fisher-Yates procedure: for i from the
// last index down to 1, swap s[i] with s[j] where j is uniform in [0, i].
// Every permutation of s is equally likely.
func Shuffle[T any](s []T, r Rand) {
	for i := len(s) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// Coin returns true with probability 0.5.
func Coin(r Rand) bool {
	return r.Float64() < 0.5
}

// Pick returns a uniformly chosen element of s. s must not be empty.
func Pick[T any](s []T, r Rand) T {
	return s[r.Intn(len(s))]
}
