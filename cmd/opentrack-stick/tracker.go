package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

// ============================================================================
// Ingest loop
// ============================================================================
//
// The tracker owns the timing of the whole pipeline. Two states:
//
//   settled   - output has stopped moving; block indefinitely for the
//               next datagram.
//   streaming - wait up to waitFor for a datagram; on timeout, replay the
//               previous sample so the smoothing window keeps converging
//               toward the last real value ("coasting") instead of the
//               output freezing mid-motion.
//
// Everything below the receive is pure per-frame computation; the socket,
// the smoother states, and the sink are all owned by this one goroutine.
//
// ============================================================================

// decodeTrackingPacket unpacks one opentrack datagram: exactly 48 bytes,
// six little-endian float64 in x, y, z, yaw, pitch, roll order.
func decodeTrackingPacket(b []byte) ([6]float64, error) {
	var sample [6]float64
	if len(b) != trackingPacketSize {
		return sample, fmt.Errorf("datagram is %d bytes, want %d", len(b), trackingPacketSize)
	}
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &sample); err != nil {
		return sample, fmt.Errorf("decode datagram: %w", err)
	}
	return sample, nil
}

// listenTracking opens the UDP socket for the opentrack feed. The kernel
// receive buffer is pinned to one packet so that a processing stall
// coalesces to the freshest datagram instead of queueing stale ones.
func listenTracking(ip string, port int) (*net.UDPConn, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid listen ip %q", ip)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: parsed, Port: port})
	if err != nil {
		return nil, fmt.Errorf("listen udp %s:%d: %w", ip, port, err)
	}
	if err := conn.SetReadBuffer(trackingPacketSize); err != nil {
		conn.Close()
		return nil, fmt.Errorf("shrink receive buffer: %w", err)
	}
	return conn, nil
}

type tracker struct {
	conn    *net.UDPConn
	disp    *frameDispatcher
	waitFor time.Duration
	logger  *slog.Logger
}

func newTracker(conn *net.UDPConn, disp *frameDispatcher, waitSecs float64, logger *slog.Logger) *tracker {
	return &tracker{
		conn:    conn,
		disp:    disp,
		waitFor: time.Duration(waitSecs * float64(time.Second)),
		logger:  logger,
	}
}

// run is the process's main loop; it only returns on context
// cancellation or a sink failure. Malformed datagrams are dropped.
func (t *tracker) run(ctx context.Context) error {
	// Cancellation has to unblock a potentially indefinite read.
	stop := context.AfterFunc(ctx, func() {
		t.conn.SetReadDeadline(time.Unix(0, 0))
	})
	defer stop()

	var current [6]float64
	buf := make([]byte, trackingPacketSize+16)
	settled := true

	for {
		if settled {
			// Nothing left to converge; wait for real data.
			t.conn.SetReadDeadline(time.Time{})
		} else {
			t.conn.SetReadDeadline(time.Now().Add(t.waitFor))
		}

		// This check must come after the deadline is armed: an
		// AfterFunc that fired earlier had its poison deadline
		// overwritten above, and one firing later re-poisons the
		// deadline that is already in place. Checked before the
		// arming, a cancellation landing in between leaves the read
		// blocking with no deadline at all.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, _, err := t.conn.ReadFromUDP(buf)
		switch {
		case err == nil:
			sample, derr := decodeTrackingPacket(buf[:n])
			if derr != nil {
				t.logger.Warn("dropping malformed datagram", "error", derr)
				continue
			}
			current = sample
		case errors.Is(err, os.ErrDeadlineExceeded):
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Coast: feed the previous sample back into the smoothers.
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("udp receive: %w", err)
		}

		settled, err = t.disp.dispatch(current)
		if err != nil {
			return fmt.Errorf("write to virtual device: %w", err)
		}
		if settled && t.logger.Enabled(ctx, slog.LevelDebug) {
			t.logger.Debug("output settled, waiting for new data")
		}
	}
}
