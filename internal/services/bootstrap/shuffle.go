package bootstrap

// Mulberry32 is a small 32-bit PRNG. The same seed produces the same
// sequence on every platform.
type Mulberry32 struct {
	state uint32
}

// NewMulberry32 seeds a generator. Only the low 32 bits of seed are used.
func NewMulberry32(seed int64) *Mulberry32 {
	return &Mulberry32{state: uint32(seed)}
}

// Uint32 returns the next raw output.
func (m *Mulberry32) Uint32() uint32 {
	m.state += 0x6D2B79F5
	t := m.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return t ^ (t >> 14)
}

// Float64 returns a value in [0, 1).
func (m *Mulberry32) Float64() float64 {
	return float64(m.Uint32()) / 4294967296.0
}

// Shuffle permutes s in place with Fisher-Yates driven by rng.
func Shuffle[T any](s []T, rng *Mulberry32) {
	for i := len(s) - 1; i > 0; i-- {
		j := int(rng.Float64() * float64(i+1))
		s[i], s[j] = s[j], s[i]
	}
}

// SeedFor derives the seed of the i-th run in a batch.
func SeedFor(baseSeed int64, i int) int64 {
	return baseSeed + int64(i)*1000
}
