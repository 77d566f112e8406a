package main

// smoother is an exponential low-pass filter recomputed over a bounded
// window of the most recent raw samples.
//
// The whole window is refolded on every call instead of keeping a single
// IIR state on purpose: the ingest loop replays the last real sample into
// the filter while coasting, and refolding the buffer is what makes that
// replayed value gradually dominate the output.
//
// The smaller the alpha, the more each previous value affects the next,
// so a smaller alpha smooths more.
type smoother struct {
	window []float64
	alpha  float64
}

// newSmoother creates a smoother over the last n samples. n <= 1 disables
// filtering entirely.
func newSmoother(n int, alpha float64) *smoother {
	s := &smoother{alpha: alpha}
	if n > 1 {
		s.window = make([]float64, n)
	}
	return s
}

// smooth folds v into the window and returns the filtered value.
//
//	y[0] := alpha * x[0]
//	y[i] := y[i-1] + alpha * (x[i] - y[i-1])
//
// NaN and Inf are not rejected; they propagate like any float64.
func (s *smoother) smooth(v float64) float64 {
	if len(s.window) <= 1 {
		return v
	}
	copy(s.window, s.window[1:])
	s.window[len(s.window)-1] = v

	acc := s.window[0] * s.alpha
	for _, w := range s.window[1:] {
		acc += s.alpha * (w - acc)
	}
	return acc
}
