package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("deckd v%s\n", version)
	fmt.Println("Serial control deck daemon: buttons and rotary encoder to desktop actions")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  deckd [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that reads newline-delimited tokens from a serial control deck")
	fmt.Println("  (buttons, rotary encoder) and dispatches desktop actions: open links,")
	fmt.Println("  launch executables, send keypresses, type text, and adjust system")
	fmt.Println("  volume and media playback via synthetic media keys.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional; flags override file values)")
	fmt.Println()
	fmt.Println("  -port string")
	fmt.Printf("        Serial port name (default %q)\n", defaultSerialPort)
	fmt.Println()
	fmt.Println("  -baudrate int")
	fmt.Printf("        Serial baud rate (default %d)\n", defaultBaudRate)
	fmt.Println()
	fmt.Println("  -list-ports")
	fmt.Println("        List available serial ports and exit")
	fmt.Println()
	fmt.Println("  -buttons string")
	fmt.Printf("        Path to button map JSON file (default %q)\n", defaultButtonsFile)
	fmt.Println()
	fmt.Println("  -retry-delay-ms int")
	fmt.Printf("        Delay between serial reconnect attempts in ms (default %d)\n", defaultRetryDelayMS)
	fmt.Println()
	fmt.Println("  -key-delay-ms int")
	fmt.Printf("        Delay between repeated volume key events in ms (default %d)\n", defaultKeyEventDelayMS)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/deckd.sock\")")
	fmt.Println()
	fmt.Println("  -state-ws-addr string")
	fmt.Println("        State websocket listen address (default \"127.0.0.1:8629\")")
	fmt.Println()
	fmt.Println("  -mqtt-broker string")
	fmt.Println("        MQTT broker URL (e.g. tcp://127.0.0.1:1883) - enables MQTT publishing when set")
	fmt.Println()
	fmt.Println("  -gui")
	fmt.Println("        Accepted for compatibility; UIs attach via the state websocket")
	fmt.Println()
	fmt.Println("  -nogui")
	fmt.Println("        Accepted for compatibility; the daemon is always headless")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with default settings (COM6 @ 9600)")
	fmt.Println("  deckd")
	fmt.Println()
	fmt.Println("  # Custom port and button map")
	fmt.Println("  deckd -port /dev/ttyUSB0 -buttons ~/.config/deckd/buttons.json")
	fmt.Println()
	fmt.Println("  # Config file with flag override")
	fmt.Println("  deckd -config /etc/deckd/deckd.yaml -log-level debug")
	fmt.Println()
	fmt.Println("  # See what serial ports are available")
	fmt.Println("  deckd -list-ports")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - The daemon reconnects to the serial port indefinitely; it keeps")
	fmt.Println("    running while the deck is unplugged")
	fmt.Println("  - Edits to the button map file are picked up automatically")
	fmt.Println()
}

func main() {
	// Check for version/help flags early
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
		configPath = flag.String("config", "", "Path to YAML config file")

		serialPort   = flag.String("port", "", "Serial port name (e.g. COM6, /dev/ttyACM0)")
		baudRate     = flag.Int("baudrate", 0, "Serial baud rate")
		listPorts    = flag.Bool("list-ports", false, "List available serial ports and exit")
		buttonsFile  = flag.String("buttons", "", "Path to button map JSON file")
		retryDelayMs = flag.Int("retry-delay-ms", 0, "Delay between serial reconnect attempts in ms")
		keyDelayMs   = flag.Int("key-delay-ms", -1, "Delay between repeated volume key events in ms")

		ipcSocketPath = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		stateWSAddr   = flag.String("state-ws-addr", "", "State websocket listen address")
		mqttBroker    = flag.String("mqtt-broker", "", "MQTT broker URL")

		// Legacy UI toggles. The daemon is headless either way; UIs attach
		// over the state websocket.
		guiMode   = flag.Bool("gui", false, "Accepted for compatibility")
		noGuiMode = flag.Bool("nogui", false, "Accepted for compatibility")

		logLevelStr = flag.String("log-level", "", "Log level: error, warn, info, debug")
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

	if *listPorts {
		ports, err := ListSerialPorts()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return
		}
		fmt.Println("Available serial ports:")
		for _, p := range ports {
			fmt.Println("  " + p)
		}
		return
	}

	// Config resolution: defaults, then file, then flag overrides.
	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(ExpandPath(*configPath))
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	overrides := FlagOverrides{}
	if *serialPort != "" {
		overrides.SerialPort = serialPort
	}
	if *baudRate != 0 {
		overrides.BaudRate = baudRate
	}
	if *retryDelayMs != 0 {
		overrides.RetryDelayMS = retryDelayMs
	}
	if *keyDelayMs >= 0 {
		overrides.KeyEventDelayMS = keyDelayMs
	}
	if *buttonsFile != "" {
		overrides.ButtonsFile = buttonsFile
	}
	if *ipcSocketPath != "" {
		overrides.IPCSocketPath = ipcSocketPath
	}
	if *stateWSAddr != "" {
		overrides.StateWSListenAddr = stateWSAddr
	}
	if *mqttBroker != "" {
		enabled := true
		overrides.MQTTEnabled = &enabled
		overrides.MQTTBroker = mqttBroker
	}
	if *logLevelStr != "" {
		overrides.LogLevel = logLevelStr
	}
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
	logger := setupLogger(logLevel)

	if *guiMode && *noGuiMode {
		fmt.Fprintln(os.Stderr, "error: -gui and -nogui are mutually exclusive")
		os.Exit(1)
	}
	if *guiMode {
		logger.Info("gui mode requested; serving UI state over websocket",
			"addr", cfg.StateWS.ListenAddr, "path", cfg.StateWS.Path)
	}

	// Button map store
	store, err := NewButtonStore(ExpandPath(cfg.Buttons.File), logger)
	if err != nil {
		logger.Error("failed to load button map", "file", cfg.Buttons.File, "error", err)
		os.Exit(1)
	}

	// Effect pipeline: keyboard, executor, effect runner
	keyboard := NewSystemKeyboard()
	executor := NewActionExecutor(keyboard, logger)
	effects := NewEffectRunner(executor, keyboard, store,
		time.Duration(cfg.Serial.KeyEventDelayMS)*time.Millisecond, logger)

	// Broadcast sinks: websocket hub, optional MQTT
	hub := NewHub(logger, store.Keys())

	var mqttPub *MQTTPublisher
	if cfg.MQTT.Enabled {
		mqttPub, err = NewMQTTPublisher(cfg.MQTT, logger)
		if err != nil {
			logger.Error("failed to connect to MQTT broker", "broker", cfg.MQTT.Broker, "error", err)
			os.Exit(1)
		}
		defer mqttPub.Close()
	}

	broadcast := func(b Broadcast) {
		if cfg.StateWS.Enabled {
			hub.OnBroadcast(b)
		}
		if mqttPub != nil {
			mqttPub.OnBroadcast(b)
		}
	}

	// Serial link + dispatcher
	link := NewSerialLink(cfg.Serial.Port, cfg.Serial.BaudRate,
		time.Duration(cfg.Serial.ReadTimeoutMS)*time.Millisecond)
	dispatcher := NewDispatcher(link, cfg.Serial.Port,
		time.Duration(cfg.Serial.RetryDelayMS)*time.Millisecond,
		store, effects, broadcast, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Debug("starting deckd", "version", version)
	logger.Info("configuration",
		"serial_port", cfg.Serial.Port,
		"baud_rate", cfg.Serial.BaudRate,
		"buttons_file", cfg.Buttons.File,
		"buttons_watch", cfg.Buttons.Watch,
		"ipc_socket", cfg.IPC.SocketPath,
		"state_ws_enabled", cfg.StateWS.Enabled,
		"state_ws_addr", cfg.StateWS.ListenAddr,
		"mqtt_enabled", cfg.MQTT.Enabled)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, dispatcher.Events(), logger)
	})

	if cfg.StateWS.Enabled {
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			return runStateWSServer(gctx, cfg.StateWS, hub, logger)
		})
	}

	if cfg.Buttons.Watch {
		g.Go(func() error {
			return store.Watch(gctx)
		})
	}

	// Bounded shutdown: once the context is canceled, give workers a grace
	// period to drain, then exit regardless.
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			logger.Error("daemon stopped", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		select {
		case <-done:
		case <-time.After(workerJoinTimeout):
			logger.Warn("workers did not stop in time, exiting anyway")
		}
	}

	logger.Info("stopped")
}
