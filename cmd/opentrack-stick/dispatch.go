package main

import (
	"log/slog"
	"time"
)

// ============================================================================
// Frame dispatcher
// ============================================================================
//
// One dispatch consumes one 6-tuple of raw tracking values, fans it out
// through the binding table, forwards the cooked events to the sink, and
// finishes the frame with a single sync so consumers see one coherent
// update rather than torn per-axis writes.
//
// All error conditions with structure (bad bindings) are caught at
// construction time; the only runtime failure mode is the sink itself.
//
// ============================================================================

// EventSink is the output side of the pipeline: an injection primitive
// that accepts individual evdev events and frame-boundary syncs.
type EventSink interface {
	Emit(typ, code uint16, value int32) error
	Sync() error
	Close() error
}

type frameDispatcher struct {
	table [6]outputDef
	sink  EventSink

	// frames receives a snapshot per dispatched frame for the monitor
	// hub. Nil (or full) means snapshots are dropped, never blocked on.
	frames chan<- frameSnapshot

	logger *slog.Logger
	debug  bool
	start  time.Time
}

func newFrameDispatcher(table [6]outputDef, sink EventSink, frames chan<- frameSnapshot, logger *slog.Logger, debug bool) *frameDispatcher {
	return &frameDispatcher{
		table:  table,
		sink:   sink,
		frames: frames,
		logger: logger,
		debug:  debug,
		start:  time.Now(),
	}
}

// dispatch runs one raw sample through every bound output. It returns
// whether the whole frame has settled: the AND over the settle flags of
// the bound outputs (outputs without a settle concept contribute true).
// A sink failure is fatal to the caller.
func (d *frameDispatcher) dispatch(sample [6]float64) (bool, error) {
	settled := true
	sentAny := false

	var snap frameSnapshot
	if d.frames != nil || d.debug {
		snap.Raw = sample
	}

	for i, dest := range d.table {
		if dest == nil {
			continue
		}
		events := dest.cook(sample[i])
		settled = settled && dest.settled()

		for _, ev := range events {
			if err := d.sink.Emit(ev.Type, ev.Code, ev.Value); err != nil {
				return settled, err
			}
			sentAny = true
			if d.frames != nil || d.debug {
				snap.Outputs = append(snap.Outputs, outputSnapshot{
					Channel: trackChannels[i].name,
					Output:  dest.name(),
					Value:   ev.Value,
				})
			}
		}
	}

	if sentAny {
		if err := d.sink.Sync(); err != nil {
			return settled, err
		}
	}

	snap.Settled = settled
	if d.frames != nil {
		select {
		case d.frames <- snap:
		default:
			// Monitor is behind; frames are cosmetic, drop.
		}
	}
	if d.debug {
		d.logger.Debug("frame",
			"t", time.Since(d.start).Seconds(),
			"settled", settled,
			"outputs", snap.Outputs)
	}
	return settled, nil
}
