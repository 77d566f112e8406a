package main

// Linux input event types and codes (from <linux/input-event-codes.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_ABS = 0x03
	EV_FF  = 0x15

	SYN_REPORT = 0x00

	ABS_X     = 0x00
	ABS_Y     = 0x01
	ABS_Z     = 0x02
	ABS_RX    = 0x03
	ABS_RY    = 0x04
	ABS_RZ    = 0x05
	ABS_HAT0X = 0x10
	ABS_HAT0Y = 0x11

	BTN_JOYSTICK = 0x120
	BTN_THUMB    = 0x121
	BTN_THUMB2   = 0x122
	BTN_TOP      = 0x123
	BTN_TOP2     = 0x124
	BTN_BASE     = 0x126

	// X-Box style gamepad buttons. These have to be declared for the
	// kernel to classify the virtual device as a joystick.
	BTN_SOUTH  = 0x130
	BTN_EAST   = 0x131
	BTN_NORTH  = 0x133
	BTN_WEST   = 0x134
	BTN_TL     = 0x136
	BTN_TR     = 0x137
	BTN_SELECT = 0x13a
	BTN_START  = 0x13b
	BTN_MODE   = 0x13c
	BTN_THUMBL = 0x13d
	BTN_THUMBR = 0x13e

	FF_RUMBLE = 0x50
)

// uinput ioctls and limits (from <linux/uinput.h>)
const (
	uinputMaxNameSize = 80
	absCnt            = 0x40

	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetAbsBit  = 0x40045567
	uiSetFFBit   = 0x4004556b

	busUSB = 0x03
)

// Identity of the emulated controller. Games key their button maps off
// the name/vendor/product triple, so mimic a real X-Box 360 pad.
const (
	deviceName    = "Microsoft X-Box 360 pad 0"
	deviceVendor  = 0x045e
	deviceProduct = 0x028e
	deviceVersion = 0x0110
)

// Tracking stream defaults
const (
	defaultListenIP   = "127.0.0.1"
	defaultListenPort = 5005

	// One opentrack packet: 6 little-endian float64 (x, y, z, yaw, pitch, roll).
	trackingPacketSize = 48

	defaultWaitSecs       = 0.001
	defaultSmoothingN     = 250
	defaultSmoothingAlpha = 0.05

	// Two consecutive smoothed values closer than this are considered
	// settled; the ingest loop stops coasting once every bound stick
	// axis reports settled.
	settleTolerance = 0.1
)
