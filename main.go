// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"tempokey/cmd"
	"tempokey/internal/audio"
	"tempokey/internal/config"
	"tempokey/internal/engine"
	"tempokey/internal/key"
	applog "tempokey/internal/log"
	"tempokey/internal/transport"
	"tempokey/internal/transport/udp"
	"tempokey/internal/tui"
	"tempokey/pkg/build"
)

// main is the entry point for the analyzer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase:
//   - Initialize build information
//   - Parse command line arguments and load the configuration
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase:
//   - Start loopback capture with backend fallback
//   - Start the analysis engine and its transports
//   - Run the terminal monitor, or log events when headless
//
// 3. Shutdown Phase:
//   - Handle termination signals or monitor exit
//   - Stop the visualization feed, engine and capture in that order
func main() {
	// ==================== STARTUP PHASE ====================

	if err := build.Initialize(); err != nil && !errors.Is(err, build.ErrMissingFlags) {
		applog.Fatalf("Build: %v", err)
	}

	cfg, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}

	if cfg.Command != "" {
		if err := executeCommand(cfg.Command); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	if err := run(cfg); err != nil {
		applog.Fatalf("%v", err)
	}
}

func run(cfg *config.Config) error {
	// ==================== CONCURRENT PHASE ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Headless {
		// The monitor owns the terminal.
		closeLog, err := redirectLogs(cfg.Debug)
		if err != nil {
			return err
		}
		defer closeLog()
	}

	backends, err := audio.NewBackends(cfg.Capture.Backends)
	if err != nil {
		return err
	}
	capture := audio.NewCapture(cfg.Capture, backends...)
	if err := capture.Start(ctx, cfg.Capture.Device); err != nil {
		// The capture keeps retrying and the failure is reported as an event.
		applog.Warnf("Capture: %v", err)
	}
	defer capture.Stop()

	var outs []transport.Transport
	if cfg.Transport.WSEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.Transport.WSAddr)
		if err != nil {
			return err
		}
		outs = append(outs, ws)
	}
	var events *transport.ChannelTransport
	if cfg.Headless {
		outs = append(outs, transport.NewLoggingTransport(engine.Describe))
	} else {
		events = transport.NewChannelTransport(64)
		outs = append(outs, events)
	}

	eng, err := engine.New(cfg, capture, outs...)
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Close()

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()

		viz := udp.FrameFunc(func(points int) udp.Frame { return udp.Frame(eng.Viz(points)) })
		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, cfg.Transport.VizPoints, sender, viz)
		if err != nil {
			return err
		}
		pub.Start()
		defer pub.Stop()
	}

	if cfg.Headless {
		applog.Infof("Running headless, press Ctrl+C to stop")
		<-ctx.Done()
		// ==================== SHUTDOWN PHASE ====================
		applog.Infof("Shutting down")
		return nil
	}

	mode, err := key.ParseDisplayMode(cfg.Key.Display)
	if err != nil {
		return err
	}
	return tui.StartMonitorUI(ctx, eng, events.C(), mode)
}

// executeCommand handles one-off commands that don't require the engine to
// be running, such as listing capture devices.
func executeCommand(command string) error {
	switch command {
	case cmd.CommandList:
		return audio.ListDevices(os.Stdout)
	case cmd.CommandListTUI:
		return tui.StartDeviceListUI()
	case cmd.CommandVersion, cmd.CommandHelp:
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// redirectLogs sends logs to tempokey.log in debug mode and drops them
// otherwise.
func redirectLogs(debug bool) (func(), error) {
	if !debug {
		applog.SetOutput(io.Discard)
		return func() { applog.SetOutput(os.Stderr) }, nil
	}
	f, err := os.OpenFile("tempokey.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	applog.SetOutput(f)
	return func() {
		applog.SetOutput(os.Stderr)
		f.Close()
	}, nil
}
