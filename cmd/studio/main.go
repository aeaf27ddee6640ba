// Command studio analyses recordings saved by the radar daemon: it builds the
// micro-Doppler image of a recording, estimates the walking cadence, stores
// the result and writes a spectrum plot and an interactive heatmap.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/baxasd/OST-Radar/internal/config"
	"github.com/baxasd/OST-Radar/internal/db"
	"github.com/baxasd/OST-Radar/internal/dsp"
	"github.com/baxasd/OST-Radar/internal/fsutil"
	"github.com/baxasd/OST-Radar/internal/security"
	"github.com/baxasd/OST-Radar/internal/units"
)

// options are the resolved studio settings.
type options struct {
	DBPath     string
	ID         string
	List       bool
	Limit      int
	OutDir     string
	GuardMps   float64
	Band       dsp.CadenceBand
	SpeedUnits string
}

func main() {
	configFile := flag.String("config", config.DefaultConfigPath, "Session config used for the database path and cadence settings")
	dbPath := flag.String("db", "", "Recording database (overrides config)")
	id := flag.String("id", "", "Recording to analyse (default: most recent)")
	list := flag.Bool("list", false, "List recordings and exit")
	limit := flag.Int("limit", 20, "Recordings shown by --list (0 for all)")
	outDir := flag.String("out", ".", "Directory for the spectrum PNG and micro-Doppler HTML")
	guard := flag.Float64("guard", -1, "Guard velocity in m/s (overrides config)")
	minHz := flag.Float64("min-hz", -1, "Lower cadence search bound in Hz (overrides config)")
	maxHz := flag.Float64("max-hz", -1, "Upper cadence search bound in Hz (overrides config)")
	speedUnits := flag.String("units", units.MPS, "Velocity axis units: mps, mph, kmph")
	flag.Parse()

	cfg, err := config.LoadSessionConfig(fsutil.OSFileSystem{}, *configFile)
	if err != nil {
		if *configFile != config.DefaultConfigPath || !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = config.EmptySessionConfig()
	}

	opts := options{
		DBPath:     cfg.GetRecordDB(),
		ID:         *id,
		List:       *list,
		Limit:      *limit,
		OutDir:     *outDir,
		GuardMps:   cfg.GetGuardVelocityMps(),
		Band:       dsp.CadenceBand{MinHz: cfg.GetCadenceMinHz(), MaxHz: cfg.GetCadenceMaxHz()},
		SpeedUnits: *speedUnits,
	}
	if *dbPath != "" {
		opts.DBPath = *dbPath
	}
	if *guard >= 0 {
		opts.GuardMps = *guard
	}
	if *minHz >= 0 {
		opts.Band.MinHz = *minHz
	}
	if *maxHz >= 0 {
		opts.Band.MaxHz = *maxHz
	}

	if err := run(context.Background(), opts, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func (o options) validate() error {
	if o.DBPath == "" {
		return errors.New("no recording database: set record_db in the config or pass --db")
	}
	if !units.IsValid(o.SpeedUnits) {
		return fmt.Errorf("invalid units %q", o.SpeedUnits)
	}
	if o.Band.MinHz < 0 || o.Band.MinHz >= o.Band.MaxHz {
		return fmt.Errorf("invalid cadence band [%g, %g] Hz", o.Band.MinHz, o.Band.MaxHz)
	}
	return nil
}

func run(ctx context.Context, o options, out io.Writer) error {
	if err := o.validate(); err != nil {
		return err
	}
	store, err := db.NewDBWithMigrationCheck(o.DBPath, true)
	if err != nil {
		return fmt.Errorf("failed to open recording database: %w", err)
	}
	defer store.Close()

	if o.List {
		return listRecordings(ctx, store, o.Limit, out)
	}

	id := o.ID
	if id == "" {
		latest, err := store.ListRecordings(ctx, 1)
		if err != nil {
			return err
		}
		if len(latest) == 0 {
			return errors.New("no recordings in database")
		}
		id = latest[0].ID
	}

	rec, err := store.LoadRecording(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load recording %s: %w", id, err)
	}
	analysis, err := rec.Analyze(o.GuardMps, o.Band)
	if err != nil {
		return fmt.Errorf("failed to analyse recording %s: %w", id, err)
	}
	if err := store.SaveAnalysis(ctx, db.NewAnalysisRecord(id, o.GuardMps, o.Band, analysis)); err != nil {
		return err
	}

	if err := os.MkdirAll(o.OutDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	pngPath, err := security.OutputPath(o.OutDir, id, "_cadence.png")
	if err != nil {
		return err
	}
	if err := writeSpectrumPNG(pngPath, analysis.Cadence, o.Band); err != nil {
		return err
	}
	htmlPath, err := security.OutputPath(o.OutDir, id, "_micro_doppler.html")
	if err != nil {
		return err
	}
	if err := writeMicroDopplerHTML(htmlPath, rec, analysis, o.SpeedUnits); err != nil {
		return err
	}

	printSummary(out, rec.ID, rec.Metadata.Subject, rec.Metadata.Activity, analysis)
	fmt.Fprintf(out, "Spectrum:      %s\nMicro-Doppler: %s\n", pngPath, htmlPath)
	return nil
}

func listRecordings(ctx context.Context, store *db.DB, limit int, out io.Writer) error {
	recs, err := store.ListRecordings(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSUBJECT\tACTIVITY\tTEMP\tFRAMES\tPROFILE")
	for _, r := range recs {
		temp := "-"
		if r.TemperatureC != nil {
			temp = fmt.Sprintf("%.1f°C", *r.TemperatureC)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.StartedAt.Format(time.DateTime), r.Subject, r.Activity, temp, r.FrameCount, r.Profile)
	}
	return tw.Flush()
}

func printSummary(out io.Writer, id, subject, activity string, a *dsp.Analysis) {
	fmt.Fprintf(out, "Recording:     %s (%s, %s)\n", id, subject, activity)
	fmt.Fprintf(out, "Duration:      %.2f s\n", a.DurationSec)
	fmt.Fprintf(out, "Average FPS:   %.2f\n", a.AvgFPS)
	fmt.Fprintf(out, "Levels:        %.1f to %.1f dB\n", a.Levels.Low, a.Levels.High)
	if a.Cadence.Found {
		fmt.Fprintf(out, "Cadence:       %.2f Hz (%.0f steps/min)\n", a.Cadence.Hz, a.Cadence.StepsPerMinute)
	} else {
		fmt.Fprintln(out, "Cadence:       not found in band")
	}
}
