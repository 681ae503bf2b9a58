// Package sim implements the Simulation Engine of spec.md §4.5: a seeded
// PCG32 PRNG, deterministic recording, and replay verification driving a
// wasmrt.Instance (or any Stepper).
package sim

const (
	pcgMultiplier       = 6364136223846793005
	pcgDefaultIncrement = 1442695040888963407
)

// PCG32 is the permuted-congruential generator of spec.md §4.5: a
// 64-bit LCG state permuted through the XSH-RR output function, using
// the constants O'Neill's reference implementation publishes. Outputs
// are a pure function of seed and sequence index — two generators
// constructed with the same (seed, seq) produce identical output
// sequences.
type PCG32 struct {
	state uint64
	inc   uint64
}

// NewPCG32 constructs a generator seeded by seed on stream seq. Distinct
// seq values produce statistically independent streams from the same
// seed.
func NewPCG32(seed, seq uint64) *PCG32 {
	p := &PCG32{inc: (seq << 1) | 1}
	p.step()
	p.state += seed
	p.step()
	return p
}

func (p *PCG32) step() { p.state = p.state*pcgMultiplier + p.inc }

// Uint32 returns the next pseudo-random 32-bit output.
func (p *PCG32) Uint32() uint32 {
	old := p.state
	p.step()
	xorshifted := uint32(((old >> 18) ^ old) >> 27)
	rot := uint32(old >> 59)
	return (xorshifted >> rot) | (xorshifted << ((-rot) & 31))
}

// Float64 returns the next output as a value in [0, 1).
func (p *PCG32) Float64() float64 {
	return float64(p.Uint32()) / (1 << 32)
}

// ShouldFill implements the fill_probability boundary behavior of
// spec.md §8: 0 never fires, 1 always fires, otherwise a Bernoulli trial
// against rng.
func ShouldFill(rng *PCG32, probability float64) bool {
	switch {
	case probability <= 0:
		return false
	case probability >= 1:
		return true
	default:
		return rng.Float64() < probability
	}
}
