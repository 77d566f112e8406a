package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ============================================================================
// /dev/uinput virtual device
// ============================================================================
//
// The production EventSink. Capability declaration happens once, before
// UI_DEV_CREATE; after that the device identity is fixed - which is why a
// failed write is fatal rather than retried (the device cannot be
// recreated mid-session without games re-enumerating it).
//
// Requires write access to /dev/uinput (udev rule or root).
//
// ============================================================================

const uinputPath = "/dev/uinput"

// inputID mirrors struct input_id.
type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputUserDev mirrors struct uinput_user_dev (legacy setup interface).
type uinputUserDev struct {
	Name       [uinputMaxNameSize]byte
	ID         inputID
	EffectsMax uint32
	Absmax     [absCnt]int32
	Absmin     [absCnt]int32
	Absfuzz    [absCnt]int32
	Absflat    [absCnt]int32
}

// inputEvent mirrors struct input_event on 64-bit Linux. Timestamps are
// left zero; the kernel stamps injected events itself.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

type uinputDevice struct {
	f *os.File
}

// openUInputDevice creates the virtual pad: declares the event types,
// keys, absolute axes and rumble bits from caps, writes the device
// description, and asks the kernel to create the device node.
func openUInputDevice(caps deviceCapabilities) (*uinputDevice, error) {
	f, err := os.OpenFile(uinputPath, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s (udev rule or root required): %w", uinputPath, err)
	}
	fd := int(f.Fd())

	fail := func(what string, err error) (*uinputDevice, error) {
		f.Close()
		return nil, fmt.Errorf("%s: %w", what, err)
	}

	for _, ev := range []int{EV_KEY, EV_ABS, EV_FF} {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, ev); err != nil {
			return fail("UI_SET_EVBIT", err)
		}
	}
	for _, code := range caps.keys {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, int(code)); err != nil {
			return fail("UI_SET_KEYBIT", err)
		}
	}
	for _, ab := range caps.abs {
		if err := unix.IoctlSetInt(fd, uiSetAbsBit, int(ab.code)); err != nil {
			return fail("UI_SET_ABSBIT", err)
		}
	}
	if err := unix.IoctlSetInt(fd, uiSetFFBit, FF_RUMBLE); err != nil {
		return fail("UI_SET_FFBIT", err)
	}

	dev := uinputUserDev{
		ID: inputID{
			Bustype: busUSB,
			Vendor:  deviceVendor,
			Product: deviceProduct,
			Version: deviceVersion,
		},
		EffectsMax: 2,
	}
	copy(dev.Name[:], deviceName)
	for _, ab := range caps.abs {
		dev.Absmin[ab.code] = ab.rng.min
		dev.Absmax[ab.code] = ab.rng.max
		dev.Absfuzz[ab.code] = ab.rng.fuzz
		dev.Absflat[ab.code] = ab.rng.flat
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &dev); err != nil {
		return fail("encode uinput_user_dev", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fail("write uinput_user_dev", err)
	}

	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		return fail("UI_DEV_CREATE", err)
	}

	return &uinputDevice{f: f}, nil
}

func (d *uinputDevice) Emit(typ, code uint16, value int32) error {
	ev := inputEvent{Type: typ, Code: code, Value: value}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &ev); err != nil {
		return err
	}
	if _, err := d.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("inject event type=%#x code=%#x: %w", typ, code, err)
	}
	return nil
}

func (d *uinputDevice) Sync() error {
	return d.Emit(EV_SYN, SYN_REPORT, 0)
}

func (d *uinputDevice) Close() error {
	fd := int(d.f.Fd())
	_ = unix.IoctlSetInt(fd, uiDevDestroy, 0)
	return d.f.Close()
}
