package db

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/baxasd/OST-Radar/internal/dsp"
	"github.com/baxasd/OST-Radar/internal/session"
)

// ErrRecordingNotFound is returned when no recording has the requested ID.
var ErrRecordingNotFound = errors.New("recording not found")

// Encoder and decoder are safe for concurrent EncodeAll/DecodeAll use.
var (
	heatmapEncoder *zstd.Encoder
	heatmapDecoder *zstd.Decoder
)

func init() {
	var err error
	heatmapEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("zstd encoder: %v", err))
	}
	heatmapDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("zstd decoder: %v", err))
	}
}

// encodeHeatmap packs samples little-endian and compresses them.
func encodeHeatmap(samples []uint16) []byte {
	raw := make([]byte, 0, 2*len(samples))
	for _, v := range samples {
		raw = binary.LittleEndian.AppendUint16(raw, v)
	}
	return heatmapEncoder.EncodeAll(raw, nil)
}

func decodeHeatmap(blob []byte, want int) ([]uint16, error) {
	raw, err := heatmapDecoder.DecodeAll(blob, make([]byte, 0, 2*want))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress heatmap: %w", err)
	}
	if len(raw) != 2*want {
		return nil, fmt.Errorf("heatmap has %d bytes, want %d", len(raw), 2*want)
	}
	out := make([]uint16, want)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return out, nil
}

// RecordingSummary is one row of the recordings listing.
type RecordingSummary struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	Activity     string    `json:"activity"`
	TemperatureC *float64  `json:"temperature_c,omitempty"`
	Profile      string    `json:"profile"`
	StartedAt    time.Time `json:"started_at"`
	StoppedAt    time.Time `json:"stopped_at"`
	FrameCount   int       `json:"frame_count"`
}

// SaveRecording stores rec and all of its frames in one transaction.
func (db *DB) SaveRecording(ctx context.Context, rec *session.Recording) error {
	if rec == nil || rec.ID == "" {
		return errors.New("recording has no ID")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO recordings (
			id, subject, activity, temperature_c, profile, notes,
			started_at_ns, stopped_at_ns, range_bins, doppler_bins,
			range_resolution_m, doppler_resolution_mps, doppler_max_mps,
			frame_rate_hz, frame_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Metadata.Subject, rec.Metadata.Activity, rec.Metadata.TemperatureC,
		rec.Metadata.Profile, rec.Metadata.Notes,
		rec.StartedAt.UnixNano(), rec.StoppedAt.UnixNano(), rec.RangeBins, rec.DopplerBins,
		rec.RangeResolutionM, rec.DopplerResolutionMps, rec.DopplerMaxMps,
		rec.FrameRateHz, len(rec.Frames),
	)
	if err != nil {
		return fmt.Errorf("failed to insert recording %s: %w", rec.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO recording_frames
		(recording_id, seq, frame_number, timestamp_ns, heatmap_zstd) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, f := range rec.Frames {
		if _, err := stmt.ExecContext(ctx, rec.ID, i, f.FrameNumber, f.Timestamp.UnixNano(), encodeHeatmap(f.Heatmap)); err != nil {
			return fmt.Errorf("failed to insert frame %d of %s: %w", i, rec.ID, err)
		}
	}
	return tx.Commit()
}

// LoadRecording reads a recording and its frames in capture order.
func (db *DB) LoadRecording(ctx context.Context, id string) (*session.Recording, error) {
	rec := &session.Recording{ID: id}
	var temperature sql.NullFloat64
	var startedNs, stoppedNs int64
	var frameCount int
	err := db.QueryRowContext(ctx, `SELECT subject, activity, temperature_c, profile, notes,
			started_at_ns, stopped_at_ns, range_bins, doppler_bins,
			range_resolution_m, doppler_resolution_mps, doppler_max_mps,
			frame_rate_hz, frame_count
		FROM recordings WHERE id = ?`, id).Scan(
		&rec.Metadata.Subject, &rec.Metadata.Activity, &temperature,
		&rec.Metadata.Profile, &rec.Metadata.Notes,
		&startedNs, &stoppedNs, &rec.RangeBins, &rec.DopplerBins,
		&rec.RangeResolutionM, &rec.DopplerResolutionMps, &rec.DopplerMaxMps,
		&rec.FrameRateHz, &frameCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if temperature.Valid {
		rec.Metadata.TemperatureC = &temperature.Float64
	}
	rec.StartedAt = time.Unix(0, startedNs)
	rec.StoppedAt = time.Unix(0, stoppedNs)

	rows, err := db.QueryContext(ctx, `SELECT frame_number, timestamp_ns, heatmap_zstd
		FROM recording_frames WHERE recording_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cells := rec.RangeBins * rec.DopplerBins
	rec.Frames = make([]session.RecordedFrame, 0, frameCount)
	for rows.Next() {
		var f session.RecordedFrame
		var tsNs int64
		var blob []byte
		if err := rows.Scan(&f.FrameNumber, &tsNs, &blob); err != nil {
			return nil, err
		}
		f.Timestamp = time.Unix(0, tsNs)
		if f.Heatmap, err = decodeHeatmap(blob, cells); err != nil {
			return nil, fmt.Errorf("recording %s frame %d: %w", id, len(rec.Frames), err)
		}
		rec.Frames = append(rec.Frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecordings returns up to limit recordings, newest first. A limit of
// zero or less returns them all.
func (db *DB) ListRecordings(ctx context.Context, limit int) ([]RecordingSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `SELECT id, subject, activity, temperature_c, profile,
			started_at_ns, stopped_at_ns, frame_count
		FROM recordings ORDER BY started_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordingSummary
	for rows.Next() {
		var s RecordingSummary
		var temperature sql.NullFloat64
		var startedNs, stoppedNs int64
		if err := rows.Scan(&s.ID, &s.Subject, &s.Activity, &temperature, &s.Profile,
			&startedNs, &stoppedNs, &s.FrameCount); err != nil {
			return nil, err
		}
		if temperature.Valid {
			t := temperature.Float64
			s.TemperatureC = &t
		}
		s.StartedAt = time.Unix(0, startedNs)
		s.StoppedAt = time.Unix(0, stoppedNs)
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteRecording removes a recording with its frames and analysis.
func (db *DB) DeleteRecording(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	return nil
}

// AnalysisRecord is a stored cadence analysis.
type AnalysisRecord struct {
	RecordingID    string          `json:"recording_id"`
	GuardMps       float64         `json:"guard_mps"`
	Band           dsp.CadenceBand `json:"band"`
	DurationSec    float64         `json:"duration_sec"`
	AvgFPS         float64         `json:"avg_fps"`
	CadenceFound   bool            `json:"cadence_found"`
	CadenceHz      float64         `json:"cadence_hz"`
	StepsPerMinute float64         `json:"steps_per_minute"`
	PeakMagnitude  float64         `json:"peak_magnitude"`
}

// NewAnalysisRecord summarises a for storage.
func NewAnalysisRecord(id string, guardMps float64, band dsp.CadenceBand, a *dsp.Analysis) AnalysisRecord {
	return AnalysisRecord{
		RecordingID:    id,
		GuardMps:       guardMps,
		Band:           band,
		DurationSec:    a.DurationSec,
		AvgFPS:         a.AvgFPS,
		CadenceFound:   a.Cadence.Found,
		CadenceHz:      a.Cadence.Hz,
		StepsPerMinute: a.Cadence.StepsPerMinute,
		PeakMagnitude:  a.Cadence.PeakMagnitude,
	}
}

// SaveAnalysis stores or replaces the analysis of a recording.
func (db *DB) SaveAnalysis(ctx context.Context, a AnalysisRecord) error {
	_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO recording_analyses (
			recording_id, guard_mps, band_min_hz, band_max_hz, duration_sec, avg_fps,
			cadence_found, cadence_hz, steps_per_minute, peak_magnitude
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RecordingID, a.GuardMps, a.Band.MinHz, a.Band.MaxHz, a.DurationSec, a.AvgFPS,
		a.CadenceFound, a.CadenceHz, a.StepsPerMinute, a.PeakMagnitude,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis of %s: %w", a.RecordingID, err)
	}
	return nil
}

// LoadAnalysis returns the stored analysis of a recording.
func (db *DB) LoadAnalysis(ctx context.Context, id string) (AnalysisRecord, error) {
	a := AnalysisRecord{RecordingID: id}
	err := db.QueryRowContext(ctx, `SELECT guard_mps, band_min_hz, band_max_hz, duration_sec,
			avg_fps, cadence_found, cadence_hz, steps_per_minute, peak_magnitude
		FROM recording_analyses WHERE recording_id = ?`, id).Scan(
		&a.GuardMps, &a.Band.MinHz, &a.Band.MaxHz, &a.DurationSec,
		&a.AvgFPS, &a.CadenceFound, &a.CadenceHz, &a.StepsPerMinute, &a.PeakMagnitude,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("%w: no analysis for %s", ErrRecordingNotFound, id)
	}
	return a, err
}
