package main

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockSink is a recording EventSink test double. It is safe for use from
// a second goroutine (the tracker tests dispatch concurrently).
type mockSink struct {
	mu      sync.Mutex
	events  []deviceEvent
	syncs   int
	emitErr error
	syncErr error
}

func (m *mockSink) Emit(typ, code uint16, value int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emitErr != nil {
		return m.emitErr
	}
	m.events = append(m.events, deviceEvent{Type: typ, Code: code, Value: value})
	return nil
}

func (m *mockSink) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncErr != nil {
		return m.syncErr
	}
	m.syncs++
	return nil
}

func (m *mockSink) Close() error { return nil }

func (m *mockSink) snapshot() ([]deviceEvent, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]deviceEvent(nil), m.events...), m.syncs
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestDispatcher(t *testing.T, bindings []int, sink EventSink) *frameDispatcher {
	t.Helper()
	// Smoothing window 1 so dispatch tests see raw values.
	catalogue := buildCatalogue(1, 1.0)
	table, err := buildBindingTable(bindings, catalogue, slog.Default())
	if err != nil {
		t.Fatalf("buildBindingTable: %v", err)
	}
	return newFrameDispatcher(table, sink, nil, slog.Default(), false)
}

func TestDispatch_YawSweep(t *testing.T) {
	sink := &mockSink{}
	// Bind yaw to catalogue output 4 (ABS_X), everything else discarded.
	d := newTestDispatcher(t, []int{0, 0, 0, 4, 0, 0}, sink)

	var samples = [][6]float64{
		{0, 0, 0, 0, 0, 0},
		{0, 0, 0, 45, 0, 0},
		{0, 0, 0, 90, 0, 0},
	}
	wantValues := []int32{0, 16384, 32767}
	wantSettled := []bool{true, false, false}

	for i, s := range samples {
		settled, err := d.dispatch(s)
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
		if settled != wantSettled[i] {
			t.Errorf("dispatch %d: settled=%v, want %v", i, settled, wantSettled[i])
		}
	}

	events, syncs := sink.snapshot()
	if len(events) != 3 {
		t.Fatalf("sink saw %d events, want 3", len(events))
	}
	for i, ev := range events {
		if ev.Type != EV_ABS || ev.Code != ABS_X {
			t.Errorf("event %d: type=%#x code=%#x, want EV_ABS/ABS_X", i, ev.Type, ev.Code)
		}
		if ev.Value != wantValues[i] {
			t.Errorf("event %d: value=%d, want %d", i, ev.Value, wantValues[i])
		}
	}
	if syncs != 3 {
		t.Errorf("sink saw %d syncs, want one per frame", syncs)
	}
}

func TestDispatch_AllDiscardedEmitsNothing(t *testing.T) {
	sink := &mockSink{}
	d := newTestDispatcher(t, []int{0, 0, 0, 0, 0, 0}, sink)

	settled, err := d.dispatch([6]float64{10, 20, 30, 40, 50, 60})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !settled {
		t.Error("frame with no bound outputs must report settled")
	}
	events, syncs := sink.snapshot()
	if len(events) != 0 || syncs != 0 {
		t.Errorf("sink saw %d events and %d syncs, want none (no sync without writes)", len(events), syncs)
	}
}

func TestDispatch_HatAndButtonFrame(t *testing.T) {
	sink := &mockSink{}
	// x -> hat-x (7), y -> BTN_JOYSTICK/BTN_BASE pair (9).
	d := newTestDispatcher(t, []int{7, 9, 0, 0, 0, 0}, sink)

	settled, err := d.dispatch([6]float64{1.2, -3, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !settled {
		t.Error("hats and button pairs have no settle concept; frame must be settled")
	}
	events, syncs := sink.snapshot()
	if len(events) != 2 || syncs != 1 {
		t.Fatalf("sink saw %d events / %d syncs, want 2 / 1", len(events), syncs)
	}
	if events[0] != (deviceEvent{Type: EV_ABS, Code: ABS_HAT0X, Value: hatPolarity}) {
		t.Errorf("hat event = %+v", events[0])
	}
	if events[1] != (deviceEvent{Type: EV_KEY, Code: BTN_JOYSTICK, Value: 1}) {
		t.Errorf("button event = %+v, want BTN_JOYSTICK (minus) press", events[1])
	}

	// Returning to center releases the button and recenters the hat.
	if _, err := d.dispatch([6]float64{0, 0, 0, 0, 0, 0}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	events, syncs = sink.snapshot()
	if len(events) != 4 || syncs != 2 {
		t.Fatalf("after release frame: %d events / %d syncs, want 4 / 2", len(events), syncs)
	}
	if events[2] != (deviceEvent{Type: EV_ABS, Code: ABS_HAT0X, Value: 0}) {
		t.Errorf("hat recenter event = %+v", events[2])
	}
	if events[3] != (deviceEvent{Type: EV_KEY, Code: BTN_JOYSTICK, Value: 0}) {
		t.Errorf("release event = %+v, want BTN_JOYSTICK release", events[3])
	}
}

func TestDispatch_SinkErrorIsFatal(t *testing.T) {
	wantErr := errors.New("device gone")
	sink := &mockSink{emitErr: wantErr}
	d := newTestDispatcher(t, []int{4, 0, 0, 0, 0, 0}, sink)

	if _, err := d.dispatch([6]float64{10, 0, 0, 0, 0, 0}); !errors.Is(err, wantErr) {
		t.Errorf("dispatch err = %v, want sink error to propagate", err)
	}

	sink2 := &mockSink{syncErr: wantErr}
	d2 := newTestDispatcher(t, []int{4, 0, 0, 0, 0, 0}, sink2)
	if _, err := d2.dispatch([6]float64{10, 0, 0, 0, 0, 0}); !errors.Is(err, wantErr) {
		t.Errorf("dispatch err = %v, want sync error to propagate", err)
	}
}

func TestDispatch_PublishesFrameSnapshots(t *testing.T) {
	sink := &mockSink{}
	frames := make(chan frameSnapshot, 1)

	catalogue := buildCatalogue(1, 1.0)
	table, err := buildBindingTable([]int{0, 0, 0, 4, 0, 0}, catalogue, slog.Default())
	if err != nil {
		t.Fatalf("buildBindingTable: %v", err)
	}
	d := newFrameDispatcher(table, sink, frames, slog.Default(), false)

	if _, err := d.dispatch([6]float64{0, 0, 0, 45, 0, 0}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	select {
	case snap := <-frames:
		if snap.Raw[3] != 45 {
			t.Errorf("snapshot raw yaw = %v, want 45", snap.Raw[3])
		}
		if len(snap.Outputs) != 1 || snap.Outputs[0].Output != "ABS_X" || snap.Outputs[0].Value != 16384 {
			t.Errorf("snapshot outputs = %+v", snap.Outputs)
		}
	default:
		t.Fatal("no frame snapshot published")
	}

	// A full snapshot channel must not block dispatch.
	for i := 0; i < 3; i++ {
		if _, err := d.dispatch([6]float64{0, 0, 0, 90, 0, 0}); err != nil {
			t.Fatalf("dispatch with full frames channel: %v", err)
		}
	}
}
