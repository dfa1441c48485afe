// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/texelway/main.go
// Summary: Starts the display server with the configured backend and optional autostart clients.
// Usage: texelway [--socket PATH] [--config FILE] [--exec CMD]... [--backend auto|terminal|headless]
// Notes: Flags override the config file; the server loop runs on the main goroutine.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/framegrace/texelway/backend"
	"github.com/framegrace/texelway/compositor"
	"github.com/framegrace/texelway/config"
	"github.com/framegrace/texelway/internal/launcher"
	"github.com/framegrace/texelway/internal/trace"
	"github.com/framegrace/texelway/registry"
	"github.com/framegrace/texelway/server"
)

const defaultSocketName = "wayland-texel-0"

type options struct {
	socket      string
	configPath  string
	backendName string
	traceDB     string
	logFile     string
	cpuProfile  string
	exec        []string
	verbose     bool
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "texelway: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("texelway", pflag.ContinueOnError)
	fs.StringVar(&opts.socket, "socket", "", "listening socket path (default $XDG_RUNTIME_DIR/"+defaultSocketName+")")
	fs.StringVar(&opts.configPath, "config", "", "config file (.json, .yaml or .yml)")
	fs.StringVar(&opts.backendName, "backend", "", "input/presentation backend: auto, terminal or headless")
	fs.StringVar(&opts.traceDB, "trace-db", "", "record protocol traffic to this sqlite database")
	fs.StringVar(&opts.logFile, "log-file", "", "write logs to this file instead of stderr")
	fs.StringVar(&opts.cpuProfile, "pprof-cpu", "", "write CPU profile to file")
	fs.StringArrayVar(&opts.exec, "exec", nil, "client command to start once the socket is up (repeatable)")
	fs.BoolVar(&opts.verbose, "verbose-logs", false, "enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func run() error {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	settings, err := config.LoadSettings(opts.configPath)
	if err != nil && opts.configPath != "" {
		return err
	}
	if err != nil {
		log.Printf("config: using defaults: %v", err)
	}
	applyFlags(&settings, opts)

	backendName, err := resolveBackend(settings.Input.Backend)
	if err != nil {
		return err
	}

	logOut, closeLog, err := openLog(opts.logFile, backendName == "terminal")
	if err != nil {
		return err
	}
	defer closeLog()
	log.SetOutput(logOut)

	server.SetVerboseLogging(opts.verbose)
	compositor.SetVerboseLogging(opts.verbose)
	backend.SetVerboseLogging(opts.verbose)
	registry.SetVerboseLogging(opts.verbose)

	if opts.cpuProfile != "" {
		f, err := os.Create(opts.cpuProfile)
		if err != nil {
			return fmt.Errorf("create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("start CPU profile: %w", err)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = f.Close()
		}()
	}

	srvOpts := server.Options{
		PollInterval: settings.Server.PollInterval,
		MaxClients:   settings.Server.MaxClients,
	}
	if opts.verbose {
		srvOpts.Stats = server.NewDispatchStatsLogger(log.Default())
	}
	if settings.Server.TraceDB != "" {
		store, err := trace.Open(settings.Server.TraceDB, trace.Options{})
		if err != nil {
			return err
		}
		defer func() {
			if dropped := store.Dropped(); dropped > 0 {
				log.Printf("trace: dropped %d entries", dropped)
			}
			if err := store.Close(); err != nil {
				log.Printf("trace: close: %v", err)
			}
		}()
		srvOpts.Tracer = trace.NewTracer(store)
		log.Printf("trace: recording to %s", settings.Server.TraceDB)
	}
	srv := server.New(registry.New(), srvOpts)

	var (
		input     <-chan backend.InputEvent
		presenter backend.Presenter
	)
	switch backendName {
	case "terminal":
		screen, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("terminal backend: %w", err)
		}
		terminal, err := backend.NewTerminal(screen)
		if err != nil {
			return fmt.Errorf("terminal backend: %w", err)
		}
		defer terminal.Close()
		settings.Output.Width, settings.Output.Height = terminal.PixelSize()
		input, presenter = terminal.Events(), terminal
	default:
		headless := backend.NewHeadless(256)
		defer headless.Close()
		input = headless.Events()
	}

	compOpts := compositor.Options{
		Output: compositor.OutputInfo{
			Width:            settings.Output.Width,
			Height:           settings.Output.Height,
			RefreshMHz:       settings.Output.RefreshMHz,
			PhysicalWidthMM:  settings.Output.PhysicalWidthMM,
			PhysicalHeightMM: settings.Output.PhysicalHeightMM,
			Make:             settings.Output.Make,
			Model:            settings.Output.Model,
		},
		Sensitivity: settings.Input.Sensitivity,
		RepeatRate:  int32(settings.Keyboard.RepeatRate),
		RepeatDelay: int32(settings.Keyboard.RepeatDelay),
	}
	if opts.verbose {
		compOpts.Focus = compositor.NewFocusMetrics(log.Default())
	}
	comp, err := compositor.New(srv, backend.NewMemRenderer(presenter), input, backend.NewBasicKeymap(), compOpts)
	if err != nil {
		return err
	}

	if err := srv.Listen(settings.Server.Socket); err != nil {
		return err
	}
	log.Printf("texelway: listening on %s (%s backend, %dx%d)", settings.Server.Socket, backendName, compOpts.Output.Width, compOpts.Output.Height)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var clients []*launcher.Client
	for _, command := range opts.exec {
		client, err := launcher.Launch(ctx, command, settings.Server.Socket, log.Default())
		if err != nil {
			log.Printf("texelway: autostart %q: %v", command, err)
			continue
		}
		clients = append(clients, client)
	}
	defer func() {
		for _, client := range clients {
			_ = client.Stop(2 * time.Second)
		}
	}()

	if err := srv.Run(ctx, comp); err != nil {
		return err
	}
	log.Printf("texelway: stopped after %d buffer releases", comp.Releases())
	return nil
}

func applyFlags(settings *config.Settings, opts options) {
	if opts.socket != "" {
		settings.Server.Socket = opts.socket
	}
	if settings.Server.Socket == "" {
		settings.Server.Socket = server.DefaultSocketPath(defaultSocketName)
	}
	if opts.backendName != "" {
		settings.Input.Backend = opts.backendName
	}
	if opts.traceDB != "" {
		settings.Server.TraceDB = opts.traceDB
	}
}

// resolveBackend maps "auto" to terminal when stdin and stdout are a tty.
func resolveBackend(name string) (string, error) {
	switch name {
	case "", "auto":
		if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
			return "terminal", nil
		}
		return "headless", nil
	case "terminal", "headless":
		return name, nil
	}
	return "", fmt.Errorf("unknown backend %q", name)
}

// openLog picks the log destination. The terminal backend owns the screen,
// so logs default to a file in the temp directory in that case.
func openLog(path string, terminal bool) (io.Writer, func(), error) {
	if path == "" && !terminal {
		return os.Stderr, func() {}, nil
	}
	if path == "" {
		path = filepath.Join(os.TempDir(), "texelway.log")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
