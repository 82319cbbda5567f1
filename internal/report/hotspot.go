package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/bdougie/flashtrap/internal/models"
	"github.com/bdougie/flashtrap/internal/storage"
)

// WriteHotspotChart renders the candidates of one run as an HTML scatter
// plot in cropped frame coordinates. Removed candidates cluster where static
// lights or reflections sit; kept ones are the flashes.
func WriteHotspotChart(w io.Writer, runID string, kept, removed []models.Candidate) error {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "flashtrap hotspots", Width: "1200px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: "Candidate hotspots", Subtitle: fmt.Sprintf("run=%s kept=%d removed=%d", runID, len(kept), len(removed))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "x (px)", NameLocation: "middle", NameGap: 25}),
		// image rows grow downwards
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "y (px)", NameLocation: "middle", NameGap: 35, Inverse: opts.Bool(true)}),
	)

	scatter.AddSeries("removed", scatterPoints(removed), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	scatter.AddSeries("kept", scatterPoints(kept), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	return scatter.Render(w)
}

func scatterPoints(cs []models.Candidate) []opts.ScatterData {
	data := make([]opts.ScatterData, 0, len(cs))
	for _, c := range cs {
		data = append(data, opts.ScatterData{Name: c.FrameID, Value: []interface{}{c.X, c.Y}})
	}
	return data
}

// SplitCandidates separates stored candidates by their kept flag.
func SplitCandidates(stored []storage.StoredCandidate) (kept, removed []models.Candidate) {
	for _, c := range stored {
		if c.Kept {
			kept = append(kept, c.Candidate)
		} else {
			removed = append(removed, c.Candidate)
		}
	}
	return kept, removed
}
