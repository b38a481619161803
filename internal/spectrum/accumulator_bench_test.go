package spectrum

import (
	"fmt"
	"math/rand/v2"
	"testing"
)

// BenchmarkUpdate measures one half-vector update at BIKE-L1 ring size.
func BenchmarkUpdate(b *testing.B) {
	const rBits = 12323

	for _, weight := range []int{40, 67, 120} {
		b.Run(fmt.Sprintf("weight%d", weight), func(b *testing.B) {
			rng := rand.New(rand.NewPCG(uint64(weight), 0))
			buf := make([]byte, (rBits+7)/8)
			for n := 0; n < weight; {
				p := rng.IntN(rBits)
				if buf[p/8]&(1<<(p%8)) == 0 {
					buf[p/8] |= 1 << (p % 8)
					n++
				}
			}

			acc := NewAccumulator(rBits, 0)
			s := New(rBits)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := acc.Update(s, buf, i%2 == 0); err != nil {
					b.Fatalf("Update failed: %v", err)
				}
			}
		})
	}
}
