package bike

// decode runs the bit-flipping decoder on syndrome (modified in place) using
// the secret weight lists and returns the error vector it converged to.
//
// Each iteration computes, for every position j of each half, the number of
// unsatisfied parity checks touching j (its UPC counter) and flips every
// position whose counter reaches the threshold. When no counter reaches it the
// positions with the largest counter are flipped instead.
func decode(l Level, syndrome []byte, wlist [2][]int) ErrorVector {
	e := NewErrorVector(l)
	halves := [2][]byte{e.E0, e.E1}

	upc := [2][]int{make([]int, l.RBits), make([]int, l.RBits)}
	flips := make([][2]int, 0, 2*l.T)

	for iter := 0; iter < l.Iterations; iter++ {
		unsat := support(syndrome)
		if len(unsat) == 0 {
			break
		}

		maxUPC := 0
		for h := range upc {
			countUPC(upc[h], unsat, wlist[h], l.RBits)

			for _, c := range upc[h] {
				maxUPC = max(maxUPC, c)
			}
		}

		if maxUPC == 0 {
			break
		}

		th := min(l.threshold(len(unsat)), maxUPC)

		flips = flips[:0]
		for h := range upc {
			for j, c := range upc[h] {
				if c >= th {
					flips = append(flips, [2]int{h, j})
				}
			}
		}

		for _, f := range flips {
			h, j := f[0], f[1]
			flipBit(halves[h], j)

			// s += x^j * h_h
			for _, k := range wlist[h] {
				p := j + k
				if p >= l.RBits {
					p -= l.RBits
				}
				flipBit(syndrome, p)
			}
		}
	}

	return e
}

// countUPC fills upc[j] with the number of set syndrome positions j+k for k in
// the block support.
func countUPC(upc []int, unsat []int, supp []int, r int) {
	clear(upc)

	for _, p := range unsat {
		for _, k := range supp {
			j := p - k
			if j < 0 {
				j += r
			}
			upc[j]++
		}
	}
}
