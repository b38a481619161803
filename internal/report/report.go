package report

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/markkurossi/tabulate"

	"BikeDS/internal/checkpoint"
	"BikeDS/internal/spectrum"
)

// Ranked is one distance of a spectrum with its deviation from the global
// success ratio.
type Ranked struct {
	Distance  int
	Success   uint64
	Total     uint64
	Ratio     float64 // Success / Total
	Deviation float64 // Ratio minus the run's global success ratio
}

// Rank returns the top distances of s ordered by absolute deviation of their
// success ratio from global. Distances never observed are skipped.
func Rank(s *spectrum.Spectrum, global float64, top int) []Ranked {
	out := make([]Ranked, 0, len(s.Total))

	for d, total := range s.Total {
		if total == 0 {
			continue
		}

		ratio := float64(s.Success[d]) / float64(total)
		out = append(out, Ranked{
			Distance:  d,
			Success:   s.Success[d],
			Total:     total,
			Ratio:     ratio,
			Deviation: ratio - global,
		})
	}

	slices.SortFunc(out, func(a, b Ranked) int {
		if c := cmp.Compare(math.Abs(b.Deviation), math.Abs(a.Deviation)); c != 0 {
			return c
		}
		return cmp.Compare(a.Distance, b.Distance)
	})

	if top > 0 && len(out) > top {
		out = out[:top]
	}

	return out
}

// Summary prints the run totals and, for each half, the top distances
// ranked by deviation.
func Summary(w io.Writer, t *checkpoint.Totals, top int) {
	global := 1 - t.FailureRate()

	tab := tabulate.New(tabulate.UnicodeLight)
	tab.Header("Records").SetAlign(tabulate.MR)
	tab.Header("Trials").SetAlign(tabulate.MR)
	tab.Header("Successes").SetAlign(tabulate.MR)
	tab.Header("Failure rate").SetAlign(tabulate.MR)

	row := tab.Row()
	row.Column(fmt.Sprintf("%d", t.Records))
	row.Column(fmt.Sprintf("%d", t.Trials))
	row.Column(fmt.Sprintf("%d", t.Successes))
	row.Column(fmt.Sprintf("%.3e", t.FailureRate()))

	tab.Print(w)

	for h, s := range t.Half {
		fmt.Fprintf(w, "\nhalf %d: top %d distances\n", h, top)

		tab := tabulate.New(tabulate.UnicodeLight)
		tab.Header("Distance").SetAlign(tabulate.MR)
		tab.Header("Success").SetAlign(tabulate.MR)
		tab.Header("Total").SetAlign(tabulate.MR)
		tab.Header("Ratio").SetAlign(tabulate.MR)
		tab.Header("Deviation").SetAlign(tabulate.MR)

		for _, r := range Rank(s, global, top) {
			row := tab.Row()
			row.Column(fmt.Sprintf("%d", r.Distance))
			row.Column(fmt.Sprintf("%d", r.Success))
			row.Column(fmt.Sprintf("%d", r.Total))
			row.Column(fmt.Sprintf("%.6f", r.Ratio))
			row.Column(fmt.Sprintf("%+.6f", r.Deviation))
		}

		tab.Print(w)
	}
}
