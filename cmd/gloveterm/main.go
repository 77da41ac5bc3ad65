package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"gloveterm/internal/adapter/ble"
	"gloveterm/internal/adapter/serial"
	"gloveterm/internal/adapter/tui/console"
	"gloveterm/internal/domain"
	"gloveterm/internal/infra/config"
	"gloveterm/internal/infra/logger"
	"gloveterm/internal/infra/tracer"
	"gloveterm/internal/usecase"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`gloveterm - interactive console for G-Love wearable devices

USAGE:
    gloveterm [FLAGS]

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)
    --transport NAME   Transport: ble or serial (overrides config)
    --port PATH        Serial port (implies --transport serial)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: GLOVETERM_* variables override config

IN-CONSOLE COMMANDS:
    /scan, /stop, /connect N, /disconnect, /clear, /quit
    Any other input is sent to the device as a command line.`)
}

// cliFlags holds command-line overrides applied on top of the config file.
type cliFlags struct {
	ConfigPath string
	Transport  string
	Port       string
}

func parseFlags() cliFlags {
	flags := cliFlags{ConfigPath: "./config.yaml"}
	for i := 1; i < len(os.Args); i++ {
		switch {
		case os.Args[i] == "--config" && i+1 < len(os.Args):
			flags.ConfigPath = os.Args[i+1]
			i++
		case strings.HasPrefix(os.Args[i], "--config="):
			flags.ConfigPath = strings.TrimPrefix(os.Args[i], "--config=")
		case os.Args[i] == "--transport" && i+1 < len(os.Args):
			flags.Transport = os.Args[i+1]
			i++
		case strings.HasPrefix(os.Args[i], "--transport="):
			flags.Transport = strings.TrimPrefix(os.Args[i], "--transport=")
		case os.Args[i] == "--port" && i+1 < len(os.Args):
			flags.Port = os.Args[i+1]
			i++
		case strings.HasPrefix(os.Args[i], "--port="):
			flags.Port = strings.TrimPrefix(os.Args[i], "--port=")
		}
	}
	return flags
}

func run() error {
	// 1. Config
	flags := parseFlags()
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if flags.Transport != "" {
		cfg.Transport = flags.Transport
	}
	if flags.Port != "" {
		cfg.Transport = "serial"
		cfg.Serial.Port = flags.Port
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// 2. Logger & tracer. The TUI owns the terminal, so a logger on stderr
	// would fight with it; steer it to a file unless configured otherwise.
	if strings.EqualFold(cfg.Logger.Output, "stderr") || cfg.Logger.Output == "" {
		cfg.Logger.Output = "./gloveterm.log"
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Transport driver
	var drv domain.Driver
	switch strings.ToLower(cfg.Transport) {
	case "serial":
		drv = serial.NewDriver(cfg.Serial.BaudRate, log)
	default:
		drv = ble.NewDriver(log)
	}

	// 4. Stream pipeline
	cli := usecase.NewSink(cfg.Console.SinkCapacity)
	monitor := usecase.NewSink(cfg.Console.SinkCapacity)
	telemetry := usecase.NewTelemetryState()
	demux := usecase.NewDemux(usecase.DemuxOptions{
		CLI:            cli,
		Monitor:        monitor,
		PendingLimit:   cfg.Console.PendingLimit,
		SuppressedTags: cfg.Console.SuppressedTags,
		Telemetry:      telemetry,
		Logger:         log,
	})

	// 5. Device session
	sess := usecase.NewDeviceSession(drv, demux, cli, usecase.SessionConfig{
		ServiceUUID:    cfg.Device.ServiceUUID,
		NotifyCharUUID: cfg.Device.NotifyCharUUID,
		WriteCharUUID:  cfg.Device.WriteCharUUID,
		SettleDelay:    cfg.Device.SettleDelayDuration(usecase.DefaultSettleDelay),
	}, log)
	sess.Run(ctx)

	// 6. Console UI
	model := console.New(console.Deps{
		Session:     sess,
		CLI:         cli,
		Monitor:     monitor,
		Telemetry:   telemetry,
		Logger:      log,
		ScanTimeout: cfg.Device.ScanTimeoutDuration(),
		HistorySize: cfg.Console.HistorySize,
	})

	log.Info("gloveterm starting", "transport", cfg.Transport)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("console: %w", err)
	}

	_ = sess.Disconnect()
	log.Info("gloveterm exiting")
	return nil
}
