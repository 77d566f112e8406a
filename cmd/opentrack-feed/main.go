package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"log"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ============================================================================
// opentrack-feed - synthetic opentrack UDP feed
// ============================================================================
// Sends opentrack-compatible packets (6 little-endian doubles: x, y, z,
// yaw, pitch, roll) so opentrack-stick can be exercised without a real
// head tracker.
//
// Usage:
//   opentrack-feed                      # sine sweep on yaw and pitch
//   opentrack-feed -mode fixed -yaw 45  # hold a fixed pose
//   opentrack-feed -rate 250 -period 4
//
// Options:
//   -target ADDR    Destination (default: 127.0.0.1:5005)
//   -rate HZ        Packets per second (default: 250)
//   -mode MODE      sine | fixed (default: sine)
//   -period SEC     Sine period in seconds (default: 8)
//   -x/-y/-z/-yaw/-pitch/-roll   Fixed pose values (fixed mode)
// ============================================================================

func main() {
	var (
		target = flag.String("target", "127.0.0.1:5005", "Destination host:port")
		rate   = flag.Int("rate", 250, "Packets per second")
		mode   = flag.String("mode", "sine", "Feed mode: sine | fixed")
		period = flag.Float64("period", 8, "Sine period in seconds")

		x     = flag.Float64("x", 0, "Fixed x (-75..75)")
		y     = flag.Float64("y", 0, "Fixed y (-75..75)")
		z     = flag.Float64("z", 0, "Fixed z (-75..75)")
		yaw   = flag.Float64("yaw", 0, "Fixed yaw (-90..90)")
		pitch = flag.Float64("pitch", 0, "Fixed pitch (-90..90)")
		roll  = flag.Float64("roll", 0, "Fixed roll (-90..90)")
	)
	flag.Parse()

	if *mode != "sine" && *mode != "fixed" {
		log.Fatalf("invalid -mode %q (want sine or fixed)", *mode)
	}
	if *rate <= 0 || *rate > 10000 {
		log.Fatalf("invalid -rate %d (want 1..10000)", *rate)
	}

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *target, err)
	}
	defer conn.Close()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

	log.Printf("feeding %s mode at %d Hz to %s (press Ctrl+C to stop)", *mode, *rate, *target)

	start := time.Now()
	var sent uint64

	for {
		select {
		case <-sigc:
			log.Printf("stopped after %d packets", sent)
			return

		case now := <-ticker.C:
			var pose [6]float64
			switch *mode {
			case "fixed":
				pose = [6]float64{*x, *y, *z, *yaw, *pitch, *roll}
			case "sine":
				// Sweep yaw and pitch a quarter-cycle apart.
				phase := 2 * math.Pi * now.Sub(start).Seconds() / *period
				pose[3] = 90 * math.Sin(phase)
				pose[4] = 90 * math.Sin(phase+math.Pi/2)
			}

			var buf bytes.Buffer
			if err := binary.Write(&buf, binary.LittleEndian, &pose); err != nil {
				log.Fatalf("encode packet: %v", err)
			}
			if _, err := conn.Write(buf.Bytes()); err != nil {
				log.Fatalf("send packet: %v", err)
			}
			sent++
		}
	}
}
