package main

import (
	"fmt"
	"image/color"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/baxasd/OST-Radar/internal/chirp"
	"github.com/baxasd/OST-Radar/internal/dsp"
	"github.com/baxasd/OST-Radar/internal/session"
	"github.com/baxasd/OST-Radar/internal/units"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// maxHeatmapColumns bounds the time axis of the micro-Doppler chart; longer
// recordings are decimated.
const maxHeatmapColumns = 600

// writeSpectrumPNG plots the one-sided cadence spectrum up to twice the top
// of band, with the band edges and the detected peak marked.
func writeSpectrumPNG(path string, c dsp.CadenceResult, band dsp.CadenceBand) error {
	if len(c.Freqs) == 0 {
		return fmt.Errorf("empty cadence spectrum")
	}
	limit := 2 * band.MaxHz

	var pts plotter.XYs
	peak := 0.0
	for i, f := range c.Freqs {
		if f < 0 || f > limit {
			continue
		}
		pts = append(pts, plotter.XY{X: f, Y: c.Magnitudes[i]})
		if c.Magnitudes[i] > peak {
			peak = c.Magnitudes[i]
		}
	}

	p := plot.New()
	p.Title.Text = "Cadence spectrum"
	if c.Found {
		p.Title.Text = fmt.Sprintf("Cadence spectrum: %.2f Hz (%.0f steps/min)", c.Hz, c.StepsPerMinute)
	}
	p.X.Label.Text = "Frequency (Hz)"
	p.Y.Label.Text = "Magnitude"
	p.X.Min, p.X.Max = 0, limit
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to create spectrum line: %w", err)
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(line)

	for _, edge := range []float64{band.MinHz, band.MaxHz} {
		marker, err := plotter.NewLine(plotter.XYs{{X: edge, Y: 0}, {X: edge, Y: peak}})
		if err != nil {
			return err
		}
		marker.Width = vg.Points(0.5)
		marker.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		marker.Color = color.Gray{Y: 128}
		p.Add(marker)
	}

	if c.Found {
		dot, err := plotter.NewScatter(plotter.XYs{{X: c.Hz, Y: c.PeakMagnitude}})
		if err != nil {
			return err
		}
		dot.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		dot.Radius = vg.Points(3)
		p.Add(dot)
	}

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// writeMicroDopplerHTML renders the time x velocity image with go-echarts.
func writeMicroDopplerHTML(path string, rec *session.Recording, a *dsp.Analysis, speedUnits string) error {
	md := a.MicroDopplerDB
	axis := dsp.VelocityAxis(&chirp.RadarConfig{NumLoops: rec.DopplerBins, DopplerMaxMps: rec.DopplerMaxMps})
	if len(axis) != md.Cols {
		return fmt.Errorf("velocity axis has %d bins, image has %d", len(axis), md.Cols)
	}

	stride := (md.Rows + maxHeatmapColumns - 1) / maxHeatmapColumns
	if stride < 1 {
		stride = 1
	}

	var times []string
	data := make([]opts.HeatMapData, 0, (md.Rows/stride+1)*md.Cols)
	for t := 0; t < md.Rows; t += stride {
		x := len(times)
		sec := 0.0
		if t < len(rec.Frames) {
			sec = rec.Frames[t].Timestamp.Sub(rec.Frames[0].Timestamp).Seconds()
		}
		times = append(times, strconv.FormatFloat(sec, 'f', 2, 64))
		for c := 0; c < md.Cols; c++ {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{x, c, md.At(t, c)}})
		}
	}
	velocities := make([]string, len(axis))
	for i, v := range axis {
		velocities[i] = strconv.FormatFloat(units.ConvertSpeed(v, speedUnits), 'f', 2, 64)
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Micro-Doppler " + rec.ID, Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Micro-Doppler",
			Subtitle: fmt.Sprintf("%s %s/%s %.1fs @ %.1f fps", rec.ID, rec.Metadata.Subject, rec.Metadata.Activity, a.DurationSec, a.AvgFPS),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: velocities, Name: "Velocity (" + speedUnits + ")", NameLocation: "middle", NameGap: 45}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        a.Levels.Low,
			Max:        a.Levels.High,
			InRange:    &opts.VisualMapInRange{Color: []string{"#000004", "#1b0c41", "#4a0c6b", "#781c6d", "#a52c60", "#cf4446", "#ed6925", "#fb9b06", "#f7d13d", "#fcffa4"}},
		}),
	)
	hm.SetXAxis(times).AddSeries("dB", data)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := hm.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to render micro-Doppler chart: %w", err)
	}
	return f.Close()
}
