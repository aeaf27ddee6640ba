package dsp

import "github.com/baxasd/OST-Radar/internal/monitoring"

// DefaultClutterAlpha keeps roughly the last 50 frames in the background.
const DefaultClutterAlpha = 0.98

// Background is an exponentially weighted estimate of static clutter in
// dB. The first frame seeds it; each later frame updates it as
// alpha*background + (1-alpha)*frame. It belongs to one frame stream and is
// not safe for concurrent use.
type Background struct {
	Alpha float32

	est  []float32
	rows int
	cols int
}

// NewBackground returns an unseeded estimator with the given decay.
func NewBackground(alpha float32) *Background {
	return &Background{Alpha: alpha}
}

// Apply updates the estimate with db and returns db minus the updated
// estimate. A frame whose shape differs from the estimate reseeds it.
func (b *Background) Apply(db Matrix) Matrix {
	if b.est == nil || b.rows != db.Rows || b.cols != db.Cols {
		if b.est != nil {
			monitoring.Logf("dsp: background shape %dx%d -> %dx%d, reseeding", b.rows, b.cols, db.Rows, db.Cols)
		}
		b.est = make([]float32, len(db.Data))
		copy(b.est, db.Data)
		b.rows, b.cols = db.Rows, db.Cols
		return NewMatrix(db.Rows, db.Cols)
	}

	alpha := b.Alpha
	out := NewMatrix(db.Rows, db.Cols)
	for i, v := range db.Data {
		b.est[i] = alpha*b.est[i] + (1-alpha)*v
		out.Data[i] = v - b.est[i]
	}
	return out
}

// Reset discards the estimate; the next frame seeds it again.
func (b *Background) Reset() {
	b.est = nil
	b.rows, b.cols = 0, 0
}

// Primed reports whether the estimate has been seeded.
func (b *Background) Primed() bool { return b.est != nil }

// Estimate returns a copy of the current estimate, or an empty matrix when
// unseeded.
func (b *Background) Estimate() Matrix {
	if b.est == nil {
		return Matrix{}
	}
	out := NewMatrix(b.rows, b.cols)
	copy(out.Data, b.est)
	return out
}
