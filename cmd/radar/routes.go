package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsweb"

	"github.com/baxasd/OST-Radar/internal/config"
	"github.com/baxasd/OST-Radar/internal/db"
	"github.com/baxasd/OST-Radar/internal/dsp"
	"github.com/baxasd/OST-Radar/internal/httputil"
	"github.com/baxasd/OST-Radar/internal/mqttsink"
	"github.com/baxasd/OST-Radar/internal/session"
	"github.com/baxasd/OST-Radar/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// echartsAssetsHost serves the echarts scripts for the debug charts.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// server exposes a running session over HTTP.
type server struct {
	sess  *session.Session
	store *db.DB
	guard float64
	band  dsp.CadenceBand

	latest atomic.Pointer[session.Delivery]
}

func newServer(sess *session.Session, store *db.DB, cfg *config.SessionConfig) *server {
	return &server{
		sess:  sess,
		store: store,
		guard: cfg.GetGuardVelocityMps(),
		band:  dsp.CadenceBand{MinHz: cfg.GetCadenceMinHz(), MaxHz: cfg.GetCadenceMaxHz()},
	}
}

// watch keeps the latest processed delivery for the heatmap chart.
func (s *server) watch(ctx context.Context) {
	id, deliveries := s.sess.Hub().Subscribe(1)
	defer s.sess.Hub().Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if d.Processed != nil {
				s.latest.Store(&d)
			}
		}
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/recording/start", s.startRecording)
	mux.HandleFunc("/api/recording/stop", s.stopRecording)
	mux.HandleFunc("/api/recordings", s.listRecordings)
	return mux
}

type statusResponse struct {
	Profile        string  `json:"profile"`
	FramesDecoded  uint64  `json:"frames_decoded"`
	ParseErrors    uint64  `json:"parse_errors"`
	DecodeErrors   uint64  `json:"decode_errors"`
	ProcessErrors  uint64  `json:"process_errors"`
	SyncTimeouts   uint64  `json:"sync_timeouts"`
	FramesDropped  uint64  `json:"frames_dropped"`
	BytesDiscarded uint64  `json:"bytes_discarded"`
	FPS            float64 `json:"fps"`
	Subscribers    int     `json:"subscribers"`
	Recording      bool    `json:"recording"`
	RecordedFrames int     `json:"recorded_frames"`
}

func (s *server) showStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	st := s.sess.Stats()
	httputil.WriteJSONOK(w, statusResponse{
		Profile:        s.sess.Profile(),
		FramesDecoded:  st.FramesDecoded,
		ParseErrors:    st.ParseErrors,
		DecodeErrors:   st.DecodeErrors,
		ProcessErrors:  st.ProcessErrors,
		SyncTimeouts:   st.Sync.Timeouts,
		FramesDropped:  st.Sync.Dropped(),
		BytesDiscarded: st.Sync.BytesDiscarded,
		FPS:            st.FPS,
		Subscribers:    st.Subscribers,
		Recording:      st.Recording,
		RecordedFrames: st.RecordedFrames,
	})
}

type configResponse struct {
	Profile              string   `json:"profile"`
	Summary              string   `json:"summary"`
	RangeBins            int      `json:"range_bins"`
	DopplerBins          int      `json:"doppler_bins"`
	RangeResolutionM     float64  `json:"range_resolution_m"`
	RangeMaxM            float64  `json:"range_max_m"`
	DopplerResolutionMps float64  `json:"doppler_resolution_mps"`
	DopplerMaxMps        float64  `json:"doppler_max_mps"`
	FrameRateHz          float64  `json:"frame_rate_hz"`
	FailedChecks         []string `json:"failed_checks,omitempty"`
}

func (s *server) showConfig(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	radar := s.sess.Radar()
	resp := configResponse{
		Profile:              s.sess.Profile(),
		Summary:              radar.Summary(),
		RangeBins:            radar.RangeBins(),
		DopplerBins:          radar.DopplerBins(),
		RangeResolutionM:     radar.RangeResolutionM,
		RangeMaxM:            radar.RangeMaxM,
		DopplerResolutionMps: radar.DopplerResolutionMps,
		DopplerMaxMps:        radar.DopplerMaxMps,
		FrameRateHz:          radar.FrameRateHz(),
	}
	for _, c := range radar.Checks() {
		if !c.OK {
			resp.FailedChecks = append(resp.FailedChecks, c.String())
		}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *server) startRecording(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var meta session.Metadata
	if err := httputil.DecodeJSON(w, r, &meta); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	id, err := s.sess.StartRecording(meta)
	if errors.Is(err, session.ErrMissingMetadata) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"id": id})
}

type stopResponse struct {
	ID          string           `json:"id"`
	Frames      int              `json:"frames"`
	DurationSec float64          `json:"duration_sec"`
	AvgFPS      float64          `json:"avg_fps"`
	Saved       bool             `json:"saved"`
	Cadence     *cadenceResponse `json:"cadence,omitempty"`
}

type cadenceResponse struct {
	Found          bool    `json:"found"`
	Hz             float64 `json:"hz"`
	StepsPerMinute float64 `json:"steps_per_minute"`
}

// stopRecording ends the recording, saves it when a database is configured
// and, with ?analyze=1, runs the cadence analysis straight away.
func (s *server) stopRecording(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	rec, err := s.sess.StopRecording()
	if errors.Is(err, session.ErrNotRecording) {
		httputil.WriteJSONError(w, http.StatusConflict, "Not recording")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	resp := stopResponse{
		ID:          rec.ID,
		Frames:      len(rec.Frames),
		DurationSec: rec.DurationSec(),
		AvgFPS:      rec.AvgFPS(),
		Saved:       s.persist(r.Context(), rec),
	}
	if analyze, _ := strconv.ParseBool(r.URL.Query().Get("analyze")); analyze && len(rec.Frames) > 1 {
		if analysis, err := rec.Analyze(s.guard, s.band); err != nil {
			log.Printf("analysis of %s failed: %v", rec.ID, err)
		} else {
			c := analysis.Cadence
			resp.Cadence = &cadenceResponse{Found: c.Found, Hz: c.Hz, StepsPerMinute: c.StepsPerMinute}
			if resp.Saved {
				if err := s.store.SaveAnalysis(r.Context(), db.NewAnalysisRecord(rec.ID, s.guard, s.band, analysis)); err != nil {
					log.Printf("failed to save analysis for %s: %v", rec.ID, err)
				}
			}
		}
	}
	httputil.WriteJSONOK(w, resp)
}

// persist saves rec to the recording database and reports whether it did.
func (s *server) persist(ctx context.Context, rec *session.Recording) bool {
	if s.store == nil {
		log.Printf("recording %s not saved: no database configured", rec.ID)
		return false
	}
	if err := s.store.SaveRecording(ctx, rec); err != nil {
		log.Printf("failed to save recording %s: %v", rec.ID, err)
		return false
	}
	log.Printf("saved recording %s (%d frames)", rec.ID, len(rec.Frames))
	return true
}

func (s *server) listRecordings(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "Recording database disabled")
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 0 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	recs, err := s.store.ListRecordings(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to list recordings: %v", err))
		return
	}
	if recs == nil {
		recs = []db.RecordingSummary{}
	}
	httputil.WriteJSONOK(w, recs)
}

// AttachAdminRoutes mounts metrics, the frame tail and the live heatmap under
// /debug/.
func (s *server) AttachAdminRoutes(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	debug := tsweb.Debugger(mux)

	debug.Handle("prometheus", "Session metrics (Prometheus)", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	debug.KV("Version", version.String())
	debug.KVFunc("Frames decoded", func() any { return s.sess.Stats().FramesDecoded })
	debug.KVFunc("Frame rate", func() any { return fmt.Sprintf("%.1f fps", s.sess.Stats().FPS) })

	debug.HandleSilentFunc("frames", s.tailFrames)
	debug.HandleFunc("heatmap", "live range-Doppler heatmap", s.heatmapChart)
}

// tailFrames streams a JSON summary of every frame as server-sent events.
func (s *server) tailFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, deliveries := s.sess.Hub().Subscribe(session.DefaultSubscriberBuffer)
	defer s.sess.Hub().Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			data, err := json.Marshal(mqttsink.Summarize(d))
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// heatmapChart renders the most recent processed frame with go-echarts.
func (s *server) heatmapChart(w http.ResponseWriter, r *http.Request) {
	d := s.latest.Load()
	if d == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no processed frame yet")
		return
	}

	var buf bytes.Buffer
	if err := renderHeatmap(&buf, s.sess.Profile(), s.sess.Radar().RangeResolutionM, dsp.VelocityAxis(s.sess.Radar()), d.Processed); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func renderHeatmap(buf *bytes.Buffer, profile string, rangeRes float64, velocities []float64, pf *dsp.ProcessedFrame) error {
	m := pf.RangeDopplerDB
	if len(velocities) != m.Cols {
		return fmt.Errorf("velocity axis has %d bins, frame has %d", len(velocities), m.Cols)
	}

	xs := make([]string, m.Cols)
	for c, v := range velocities {
		xs[c] = strconv.FormatFloat(v, 'f', 2, 64)
	}
	ys := make([]string, m.Rows)
	for row := range ys {
		ys[row] = strconv.FormatFloat(rangeRes*float64(row), 'f', 2, 64)
	}
	data := make([]opts.HeatMapData, 0, len(m.Data))
	for row := 0; row < m.Rows; row++ {
		for c := 0; c < m.Cols; c++ {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{c, row, m.At(row, c)}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Range-Doppler", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Range-Doppler (dB)", Subtitle: fmt.Sprintf("profile=%s frame=%d", profile, pf.FrameNumber)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "Velocity (m/s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "Range (m)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        pf.Levels.Low,
			Max:        pf.Levels.High,
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	hm.SetXAxis(xs).AddSeries("dB", data)
	return hm.Render(buf)
}
