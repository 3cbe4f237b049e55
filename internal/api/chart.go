package api

import (
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// confidenceChart renders an HTML line chart of average tracker confidence
// and candidate counts over the current session's frames. Debugging aid for
// tuning thresholds without the UI.
// Query params:
//   - limit (optional; default 2000) caps the number of frames plotted
func (s *Server) confidenceChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil || s.session == nil {
		s.writeJSONError(w, http.StatusNotFound, "no learning log configured")
		return
	}

	limit := 2000
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 50000 {
			limit = v
		}
	}

	series, err := s.db.FrameStatsSeries(s.session.ID, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load frame stats")
		return
	}
	if len(series) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no frame stats recorded yet")
		return
	}

	frames := make([]string, len(series))
	confidence := make([]opts.LineData, len(series))
	candidates := make([]opts.LineData, len(series))
	for i, fs := range series {
		frames[i] = strconv.Itoa(fs.FrameIdx)
		confidence[i] = opts.LineData{Value: fs.AvgConfidence}
		candidates[i] = opts.LineData{Value: fs.CandidatesReady}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "tile learning confidence",
			Subtitle: "session " + s.session.ID,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "avg confidence"}),
	)
	line.SetXAxis(frames).
		AddSeries("avg confidence", confidence).
		AddSeries("candidates ready", candidates)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := line.Render(w); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to render chart")
	}
}
