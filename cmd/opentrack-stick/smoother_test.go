package main

import (
	"math"
	"testing"
)

func TestSmoother_NoopWindow(t *testing.T) {
	for _, n := range []int{0, 1} {
		s := newSmoother(n, 0.05)
		for _, v := range []float64{0, -75, 75, 12.34, math.Inf(1)} {
			if got := s.smooth(v); got != v {
				t.Errorf("n=%d: smooth(%v) = %v, want input unchanged", n, v, got)
			}
		}
	}
}

func TestSmoother_AlphaOneTracksLatest(t *testing.T) {
	// With alpha=1 every fold step saturates to the latest buffered
	// value, so smoothing becomes a passthrough regardless of window.
	s := newSmoother(5, 1.0)
	for _, v := range []float64{3, -8, 42.5, 0} {
		if got := s.smooth(v); got != v {
			t.Errorf("smooth(%v) = %v, want %v", v, got, v)
		}
	}
}

func TestSmoother_ConvergesToConstantInput(t *testing.T) {
	const (
		n     = 10
		alpha = 0.5
		v     = 5.0
	)
	s := newSmoother(n, alpha)

	prev := 0.0
	for i := 0; i < n; i++ {
		got := s.smooth(v)
		if got < prev {
			t.Fatalf("call %d: smoothed value %v decreased below %v; want monotonic rise toward %v", i+1, got, prev, v)
		}
		if got > v {
			t.Fatalf("call %d: smoothed value %v overshot constant input %v", i+1, got, v)
		}
		prev = got
	}

	// After the window is saturated the residual is v*(1-alpha)^n.
	if diff := math.Abs(prev - v); diff > settleTolerance {
		t.Errorf("after %d constant inputs: smoothed=%v, want within %v of %v (diff %v)", n, prev, settleTolerance, v, diff)
	}
}

func TestSmoother_StableOnceWindowSaturated(t *testing.T) {
	s := newSmoother(4, 0.5)
	var last float64
	for i := 0; i < 4; i++ {
		last = s.smooth(45)
	}
	// Window now holds only 45s; further identical input cannot move
	// the fold.
	if got := s.smooth(45); got != last {
		t.Errorf("saturated window: smooth(45) = %v, want %v", got, last)
	}
}

func TestSmoother_SmallerAlphaSmoothsMore(t *testing.T) {
	strong := newSmoother(8, 0.05)
	weak := newSmoother(8, 0.5)
	var sGot, wGot float64
	for i := 0; i < 3; i++ {
		sGot = strong.smooth(60)
		wGot = weak.smooth(60)
	}
	if sGot >= wGot {
		t.Errorf("alpha=0.05 produced %v, alpha=0.5 produced %v; smaller alpha should lag further behind the input", sGot, wGot)
	}
}
