package session

import "time"

// fpsWindow estimates frame rate over the last n frame intervals.
type fpsWindow struct {
	times []time.Time
	n     int
}

func newFPSWindow(n int) *fpsWindow {
	if n < 2 {
		n = 2
	}
	return &fpsWindow{times: make([]time.Time, 0, n+1), n: n}
}

// Tick records a frame arrival and returns the updated rate.
func (w *fpsWindow) Tick(t time.Time) float64 {
	w.times = append(w.times, t)
	if len(w.times) > w.n+1 {
		w.times = w.times[1:]
	}
	return w.Rate()
}

// Rate is intervals per second across the window, or zero before two
// frames have arrived.
func (w *fpsWindow) Rate() float64 {
	if len(w.times) < 2 {
		return 0
	}
	span := w.times[len(w.times)-1].Sub(w.times[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(w.times)-1) / span
}
