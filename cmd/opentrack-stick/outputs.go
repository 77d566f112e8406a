package main

import (
	"fmt"
	"math"
)

// ============================================================================
// Output catalogue: the virtual controls a tracking channel can drive
// ============================================================================
//
// The emulated pad exposes a fixed catalogue of outputs:
//   - 6 stick axes (smoothed, rescaled to the device range)
//   - 2 hat axes (quantized to -1/0/1)
//   - 3 button pairs (sign of the input selects which button is pressed)
//
// Users refer to catalogue entries by 1-based number in the bindings list;
// 0 means "discard the channel".
//
// ============================================================================

// trackChannel is one of the six head-tracking degrees of freedom together
// with the value range opentrack emits for it.
type trackChannel struct {
	name     string
	min, max float64
}

// trackChannels in opentrack packet order.
var trackChannels = [6]trackChannel{
	{"x", -75, 75},
	{"y", -75, 75},
	{"z", -75, 75},
	{"yaw", -90, 90},
	{"pitch", -90, 90},
	{"roll", -90, 90},
}

// deviceEvent is one evdev event destined for the sink.
type deviceEvent struct {
	Type  uint16
	Code  uint16
	Value int32
}

// absRange mirrors the evdev absinfo fields declared for an ABS output.
type absRange struct {
	min, max   int32
	fuzz, flat int32
}

// outputDef is a single virtual control. Implementations own whatever
// per-channel state their transform needs (smoother history, settle flag,
// pressed-button memory). None of it is shared, so no locking anywhere.
type outputDef interface {
	name() string

	// bindSource attaches the tracking channel's value range. A stick
	// axis only has a valid rescale once bound.
	bindSource(src trackChannel)

	// cook converts a raw tracking value into zero or more device
	// events. An empty slice means nothing to emit this frame.
	cook(raw float64) []deviceEvent

	// settled reports whether the latest cooked value has stopped
	// moving. Outputs with no settle concept always report true.
	settled() bool
}

// ----------------------------------------------------------------------------
// Stick axis
// ----------------------------------------------------------------------------

type stickAxis struct {
	label string
	code  uint16
	rng   absRange

	src    trackChannel
	bound  bool
	smooth *smoother

	prevSmoothed float64
	exhausted    bool
}

func newStickAxis(label string, code uint16, rng absRange, smoothingN int, alpha float64) *stickAxis {
	return &stickAxis{
		label:     label,
		code:      code,
		rng:       rng,
		smooth:    newSmoother(smoothingN, alpha),
		exhausted: true,
	}
}

func (a *stickAxis) name() string                { return a.label }
func (a *stickAxis) bindSource(src trackChannel) { a.src = src; a.bound = true }
func (a *stickAxis) settled() bool               { return a.exhausted }

// cook smooths the raw value, updates the settle flag, and rescales the
// smoothed value linearly from the tracking range to the device range.
// Rounding is half-away-from-zero (math.Round). The result is clamped to
// the declared device range so that extrapolated or non-finite input can
// never produce an out-of-range event.
func (a *stickAxis) cook(raw float64) []deviceEvent {
	smoothed := a.smooth.smooth(raw)
	a.exhausted = math.Abs(smoothed-a.prevSmoothed) <= settleTolerance
	a.prevSmoothed = smoothed

	span := float64(a.rng.max - a.rng.min)
	scaled := float64(a.rng.min) + math.Round((smoothed-a.src.min)/(a.src.max-a.src.min)*span)

	value := a.rng.max
	switch {
	case math.IsNaN(scaled), scaled < float64(a.rng.min):
		value = a.rng.min
	case scaled > float64(a.rng.max):
		// keep a.rng.max
	default:
		value = int32(scaled)
	}
	return []deviceEvent{{Type: EV_ABS, Code: a.code, Value: value}}
}

// ----------------------------------------------------------------------------
// Hat axis
// ----------------------------------------------------------------------------

// hatPolarity fixes the sign convention for hat output: +1 means a
// positive tracking value presses the positive hat direction. Variants of
// the tool have shipped with the opposite convention; flip here if a game
// expects it inverted.
const hatPolarity = 1

type hatAxis struct {
	label string
	code  uint16
	rng   absRange
}

func newHatAxis(label string, code uint16) *hatAxis {
	return &hatAxis{label: label, code: code, rng: absRange{min: -1, max: 1}}
}

func (h *hatAxis) name() string { return h.label }

// bindSource is a no-op: hats quantize to the sign, so the source range
// never enters the transform.
func (h *hatAxis) bindSource(trackChannel) {}

func (h *hatAxis) settled() bool { return true }

// cook rounds the raw value and emits only its sign: values rounding to
// zero center the hat, anything else deflects it one step. No smoothing
// is applied to hats.
func (h *hatAxis) cook(raw float64) []deviceEvent {
	var value int32
	switch d := math.Round(raw); {
	case d > 0:
		value = hatPolarity
	case d < 0:
		value = -hatPolarity
	}
	return []deviceEvent{{Type: EV_ABS, Code: h.code, Value: value}}
}

// ----------------------------------------------------------------------------
// Button pair
// ----------------------------------------------------------------------------

// buttonZeroTolerance is how close to zero a raw value must be to count
// as "released" for a button pair.
const buttonZeroTolerance = 1e-9

type buttonPair struct {
	label     string
	minusCode uint16
	plusCode  uint16

	// pressed is the code currently held down, or 0 for neither.
	pressed uint16
}

func newButtonPair(minusName string, minusCode uint16, plusName string, plusCode uint16) *buttonPair {
	return &buttonPair{
		label:     fmt.Sprintf("%s/%s", minusName, plusName),
		minusCode: minusCode,
		plusCode:  plusCode,
	}
}

func (b *buttonPair) name() string { return b.label }

// bindSource is a no-op: only the sign of the input matters.
func (b *buttonPair) bindSource(trackChannel) {}

func (b *buttonPair) settled() bool { return true }

// cook maps the sign of the raw value onto one of the two buttons: a
// positive value presses the "plus" button, a negative one the "minus"
// button, and a (toleranced) zero releases whichever button was held.
// A sign flip releases the old button before pressing the new one so the
// pair is never down simultaneously.
func (b *buttonPair) cook(raw float64) []deviceEvent {
	if math.Abs(raw) <= buttonZeroTolerance {
		if b.pressed == 0 {
			return nil
		}
		ev := deviceEvent{Type: EV_KEY, Code: b.pressed, Value: 0}
		b.pressed = 0
		return []deviceEvent{ev}
	}

	code := b.plusCode
	if raw < 0 {
		code = b.minusCode
	}

	var evs []deviceEvent
	if b.pressed != 0 && b.pressed != code {
		evs = append(evs, deviceEvent{Type: EV_KEY, Code: b.pressed, Value: 0})
	}
	b.pressed = code
	return append(evs, deviceEvent{Type: EV_KEY, Code: code, Value: 1})
}

// ----------------------------------------------------------------------------
// Catalogue construction and capability extraction
// ----------------------------------------------------------------------------

// buildCatalogue constructs the fixed output catalogue. Order matters:
// the 1-based position is what users put in the bindings list.
func buildCatalogue(smoothingN int, alpha float64) []outputDef {
	wide := absRange{min: -32767, max: 32767, fuzz: 16, flat: 128}
	trigger := absRange{min: 0, max: 255}

	return []outputDef{
		newStickAxis("ABS_RX", ABS_RX, wide, smoothingN, alpha),
		newStickAxis("ABS_RY", ABS_RY, wide, smoothingN, alpha),
		newStickAxis("ABS_RZ", ABS_RZ, trigger, smoothingN, alpha),
		newStickAxis("ABS_X", ABS_X, wide, smoothingN, alpha),
		newStickAxis("ABS_Y", ABS_Y, wide, smoothingN, alpha),
		newStickAxis("ABS_Z", ABS_Z, trigger, smoothingN, alpha),
		newHatAxis("ABS_HAT0X", ABS_HAT0X),
		newHatAxis("ABS_HAT0Y", ABS_HAT0Y),
		newButtonPair("BTN_JOYSTICK", BTN_JOYSTICK, "BTN_BASE", BTN_BASE),
		newButtonPair("BTN_THUMB", BTN_THUMB, "BTN_THUMB2", BTN_THUMB2),
		newButtonPair("BTN_TOP", BTN_TOP, "BTN_TOP2", BTN_TOP2),
	}
}

// catalogueSize is the number of outputs buildCatalogue returns; binding
// numbers range over 0..catalogueSize.
const catalogueSize = 11

type absCapability struct {
	code uint16
	rng  absRange
}

type deviceCapabilities struct {
	abs  []absCapability
	keys []uint16
}

// capabilitiesFor derives the uinput capability declaration from the
// catalogue. The standard gamepad buttons are always declared - the
// kernel refuses to treat the device as a joystick without them - and the
// button-pair codes are declared so pair presses actually reach games.
func capabilitiesFor(catalogue []outputDef) deviceCapabilities {
	caps := deviceCapabilities{
		keys: []uint16{
			BTN_SOUTH, BTN_EAST, BTN_NORTH, BTN_WEST,
			BTN_TL, BTN_TR, BTN_SELECT, BTN_START, BTN_MODE,
			BTN_THUMBL, BTN_THUMBR,
		},
	}
	for _, out := range catalogue {
		switch o := out.(type) {
		case *stickAxis:
			caps.abs = append(caps.abs, absCapability{code: o.code, rng: o.rng})
		case *hatAxis:
			caps.abs = append(caps.abs, absCapability{code: o.code, rng: o.rng})
		case *buttonPair:
			caps.keys = append(caps.keys, o.minusCode, o.plusCode)
		}
	}
	return caps
}
