package outcome

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// RNG is the random source behind every draw. Implementations must be safe to
// replace with a seeded stream so resolver output is replayable in tests.
type RNG interface {
	// Float64 returns a uniform draw in [0, 1).
	Float64() float64
	// IntN returns a uniform draw in [0, n).
	IntN(n int) int
}

type cryptoRNG struct{}

func (cryptoRNG) Float64() float64 {
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return rand.Float64()
	}
	u := binary.BigEndian.Uint64(buf[:]) >> 11 // 53 bits
	return float64(u) / (1 << 53)
}

func (r cryptoRNG) IntN(n int) int {
	return int(r.Float64() * float64(n))
}

// CryptoRNG returns the default crypto-backed random source.
func CryptoRNG() RNG { return cryptoRNG{} }

type seededRNG struct {
	r *rand.Rand
}

// SeededRNG returns a deterministic random source for replay and simulation.
func SeededRNG(seed uint64) RNG {
	return &seededRNG{r: rand.New(rand.NewPCG(seed, 0))}
}

func (s *seededRNG) Float64() float64 { return s.r.Float64() }

func (s *seededRNG) IntN(n int) int { return s.r.IntN(n) }
