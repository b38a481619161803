package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"BikeDS/internal/checkpoint"
	"BikeDS/internal/spectrum"
)

// Chart renders an HTML page plotting the per-distance success ratio of both
// halves. Distances never observed are plotted as zero.
func Chart(w io.Writer, t *checkpoint.Totals, title string) error {
	n := len(t.Half[0].Total)

	xs := make([]int, n)
	for d := range xs {
		xs[d] = d
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%d trials, failure rate %.3e", t.Trials, t.FailureRate()),
		}),
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "600px"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}, opts.DataZoom{Type: "slider"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	line.SetXAxis(xs)
	for h, s := range t.Half {
		line.AddSeries(fmt.Sprintf("half %d", h), ratioItems(s))
	}

	page := components.NewPage().SetPageTitle(title)
	page.AddCharts(line)

	return page.Render(w)
}

// ratioItems converts a spectrum into success ratios per distance.
func ratioItems(s *spectrum.Spectrum) []opts.LineData {
	out := make([]opts.LineData, len(s.Total))
	for d, total := range s.Total {
		v := 0.0
		if total > 0 {
			v = float64(s.Success[d]) / float64(total)
		}
		out[d] = opts.LineData{Value: v}
	}

	return out
}
