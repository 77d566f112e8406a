package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("opentrack-stick v%s\n", version)
	fmt.Println("opentrack UDP feed to Linux HID joystick events")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  opentrack-stick [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Listens for opentrack UDP-output packets (6 little-endian doubles:")
	fmt.Println("  x, y, z, yaw, pitch, roll), smooths them, and injects them into the")
	fmt.Println("  Linux input subsystem as events from a virtual joystick. The events")
	fmt.Println("  are injected at the HID level, so any application that reads")
	fmt.Println("  joysticks can consume head-tracking - including Steam Proton games.")
	fmt.Println()
	fmt.Println("  Gaps in the feed are filled by replaying the last move into the")
	fmt.Println("  smoother, so the most recent pose becomes dominant as time passes")
	fmt.Println("  instead of the stick freezing abruptly.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -w float")
	fmt.Printf("        Seconds to wait for input before interpolating (default %g,\n", defaultWaitSecs)
	fmt.Println("        simulating a 1000 Hz device)")
	fmt.Println()
	fmt.Println("  -s int")
	fmt.Printf("        Smooth over n values (default %d); 0 or 1 disables smoothing\n", defaultSmoothingN)
	fmt.Println()
	fmt.Println("  -a float")
	fmt.Printf("        Smoothing alpha in (0,1]; smaller smooths more (default %g)\n", defaultSmoothingAlpha)
	fmt.Println()
	fmt.Println("  -b csv")
	fmt.Println("        Bindings from tracking channels to virtual controls: 6 integers")
	fmt.Println("        in x,y,z,yaw,pitch,roll order (default \"1,2,3,4,5,6\")")
	fmt.Println()
	fmt.Println("  -i string")
	fmt.Printf("        IP address to listen on for the UDP feed (default %q)\n", defaultListenIP)
	fmt.Println()
	fmt.Println("  -p int")
	fmt.Printf("        UDP port to listen on (default %d)\n", defaultListenPort)
	fmt.Println()
	fmt.Println("  -monitor-port int")
	fmt.Println("        Serve a websocket frame monitor on this port (0 disables)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -d    Log joystick event values (forces debug log level)")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("VIRTUAL CONTROL NUMBERS (for -b):")
	fmt.Println("   0  discard")
	fmt.Println("   1  right-stick x-axis (ABS_RX)")
	fmt.Println("   2  right-stick y-axis (ABS_RY)")
	fmt.Println("   3  right-stick z-axis (ABS_RZ, trigger range)")
	fmt.Println("   4  left-stick x-axis (ABS_X)")
	fmt.Println("   5  left-stick y-axis (ABS_Y)")
	fmt.Println("   6  left-stick z-axis (ABS_Z, trigger range)")
	fmt.Println("   7  hat-x (ABS_HAT0X)")
	fmt.Println("   8  hat-y (ABS_HAT0Y)")
	fmt.Println("   9  BTN_JOYSTICK/BTN_BASE minus/plus button pair")
	fmt.Println("  10  BTN_THUMB/BTN_THUMB2 minus/plus button pair")
	fmt.Println("  11  BTN_TOP/BTN_TOP2 minus/plus button pair")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Defaults: x,y,z,yaw,pitch,roll -> controls 1..6")
	fmt.Println("  opentrack-stick")
	fmt.Println()
	fmt.Println("  # Head z to control 1, yaw to 4, pitch to 5, rest discarded")
	fmt.Println("  opentrack-stick -b 0,0,1,4,5,0")
	fmt.Println()
	fmt.Println("  # Watch cooked values live at ws://localhost:8600/ws")
	fmt.Println("  opentrack-stick -monitor-port 8600 -d")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires write access to /dev/uinput, e.g. a udev rule:")
	fmt.Println("      KERNEL==\"uinput\", TAG+=\"uaccess\"")
	fmt.Println("  - In opentrack select Output 'UDP over network' and point it at")
	fmt.Println("    the listen address (default 127.0.0.1:5005), then pick the")
	fmt.Printf("    joystick named %q in the game.\n", deviceName)
	fmt.Println()
}

func main() {
	// Handle help/version before flag parsing so they win over bad flags.
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath  = flag.String("config", "", "YAML config file")
		waitSecs    = flag.Float64("w", defaultWaitSecs, "Seconds to wait for input before interpolating")
		smoothingN  = flag.Int("s", defaultSmoothingN, "Smooth over n values")
		smoothAlpha = flag.Float64("a", defaultSmoothingAlpha, "Smoothing alpha in (0,1]")
		bindingsCSV = flag.String("b", "1,2,3,4,5,6", "Bindings: 6 integers in x,y,z,yaw,pitch,roll order")
		listenIP    = flag.String("i", defaultListenIP, "IP address to listen on for the UDP feed")
		listenPort  = flag.Int("p", defaultListenPort, "UDP port to listen on")
		monitorPort = flag.Int("monitor-port", 0, "Websocket frame monitor port (0 disables)")
		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		debug       = flag.Bool("d", false, "Log joystick event values")
		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)
	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Start from defaults, layer the config file, then explicit flags.
	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var overrides FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			overrides.ListenIP = listenIP
		case "p":
			overrides.ListenPort = listenPort
		case "w":
			overrides.WaitSecs = waitSecs
		case "s":
			overrides.SmoothingN = smoothingN
		case "a":
			overrides.SmoothingAlpha = smoothAlpha
		case "b":
			parsed, err := parseBindings(*bindingsCSV)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				os.Exit(1)
			}
			overrides.Bindings = parsed
		case "monitor-port":
			overrides.MonitorPort = monitorPort
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel, *debug)

	// Build the pipeline: catalogue, binding table, virtual device.
	catalogue := buildCatalogue(cfg.Tracking.SmoothingN, cfg.Tracking.SmoothingAlpha)

	outputNames := make([]string, len(catalogue))
	for i, out := range catalogue {
		outputNames[i] = fmt.Sprintf("%d=%s", i+1, out.name())
	}
	logger.Info("available outputs", "outputs", strings.Join(append(outputNames, "0=discard"), ","))

	table, err := buildBindingTable(cfg.Tracking.Bindings, catalogue, logger)
	if err != nil {
		logger.Error("invalid bindings", "error", err)
		os.Exit(1)
	}

	device, err := openUInputDevice(capabilitiesFor(catalogue))
	if err != nil {
		logger.Error("failed to create virtual device", "error", err)
		os.Exit(1)
	}
	defer device.Close()

	conn, err := listenTracking(cfg.UDP.ListenIP, cfg.UDP.ListenPort)
	if err != nil {
		logger.Error("failed to open UDP listener", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigc
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	// Optional websocket monitor.
	var frames chan frameSnapshot
	if cfg.Monitor.Port > 0 {
		frames = make(chan frameSnapshot, 64)

		bindingNames := make([]string, len(trackChannels))
		for i, ch := range trackChannels {
			if table[i] != nil {
				bindingNames[i] = fmt.Sprintf("%s->%s", ch.name, table[i].name())
			} else {
				bindingNames[i] = fmt.Sprintf("%s->discard", ch.name)
			}
		}
		channelNames := make([]string, len(trackChannels))
		for i, ch := range trackChannels {
			channelNames[i] = ch.name
		}
		init := streamInitData{
			Device:   deviceName,
			Channels: channelNames,
			Bindings: bindingNames,
		}
		go func() {
			if err := runMonitor(ctx, cfg.Monitor.Port, frames, init, logger); err != nil {
				logger.Error("monitor stopped", "error", err)
			}
		}()
	}

	disp := newFrameDispatcher(table, device, frames, logger, *debug)
	tr := newTracker(conn, disp, cfg.Tracking.WaitSecs, logger)

	logger.Info("listening",
		"udp", fmt.Sprintf("%s:%d", cfg.UDP.ListenIP, cfg.UDP.ListenPort),
		"device", deviceName,
		"wait_ms", cfg.Tracking.WaitSecs*1000,
		"smoothing_n", cfg.Tracking.SmoothingN,
		"smoothing_alpha", cfg.Tracking.SmoothingAlpha,
		"monitor_port", cfg.Monitor.Port)

	if err := tr.run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("tracker stopped", "error", err)
		os.Exit(1)
	}
}
