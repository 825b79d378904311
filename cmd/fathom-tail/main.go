// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

// Fathom-tail follows a homeserver's event stream and prints every
// event as a line of JSON on stdout. It is the reference consumer of
// the sync engine: it resumes from the checkpointed cursor, retries
// transient server failures with exponential backoff, and stops
// cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/fathom-im/fathom/lib/config"
	"github.com/fathom-im/fathom/lib/version"
	"github.com/fathom-im/fathom/messaging"
	"github.com/fathom-im/fathom/syncer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		categories  []string
		fromStart   bool
		verbose     bool
		showVersion bool
	)

	pflag.StringVar(&configPath, "config", "", "path to fathom.yaml (overrides FATHOM_CONFIG)")
	pflag.StringSliceVar(&categories, "category", nil, "only print these categories (invite, leave, presence, ephemeral, generic); default all")
	pflag.BoolVar(&fromStart, "from-start", false, "ignore the checkpointed cursor and start from an initial sync")
	pflag.BoolVar(&verbose, "verbose", false, "enable debug logging")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("fathom-tail %s\n", version.Info())
		return nil
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	token, err := cfg.ReadToken()
	if err != nil {
		return err
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver.URL,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	defer client.CloseIdleConnections()

	session, err := client.SessionFromToken(cfg.Homeserver.UserID, token)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	// Fail fast on a dead token rather than inside the sync loop.
	userID, err := session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("validating session: %w", err)
	}
	logger.Info("session validated", "user_id", userID)

	filter, err := loadFilter(cfg.Sync.FilterFile)
	if err != nil {
		return err
	}

	pollTimeout, err := cfg.PollTimeout()
	if err != nil {
		return err
	}
	transport := syncer.NewSessionTransport(syncer.SessionTransportConfig{
		Session: session,
		Timeout: pollTimeout,
		Filter:  filter,
	})

	registry := syncer.NewRegistry(logger)
	// A dead stdout (downstream pipe closed) makes further polling
	// pointless: log once and shut down.
	stopOnce := sync.OnceFunc(stop)
	err = registerPrinters(registry, categories, os.Stdout, func(writeErr error) {
		logger.Error("writing event to stdout failed, stopping", "error", writeErr)
		stopOnce()
	})
	if err != nil {
		return err
	}

	backoffBase, err := cfg.BackoffBase()
	if err != nil {
		return err
	}
	backoffCeiling, err := cfg.BackoffCeiling()
	if err != nil {
		return err
	}

	var store syncer.CursorStore
	if cfg.Sync.CursorFile != "" && !fromStart {
		store = syncer.NewFileCursorStore(cfg.Sync.CursorFile)
	}

	engine, err := syncer.NewEngine(syncer.EngineConfig{
		Transport:   transport,
		Registry:    registry,
		Backoff:     syncer.Backoff{Base: backoffBase, Ceiling: backoffCeiling},
		CursorStore: store,
		Logger:      logger,
		OnFatal: func(err error) error {
			// No recovery strategy in a tail tool: surface the error
			// and terminate.
			return err
		},
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	runner := syncer.NewRunner(engine)
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("starting sync: %w", err)
	}
	logger.Info("following event stream", "homeserver", cfg.Homeserver.URL)

	<-runner.Done()
	if err := runner.Stop(); err != nil {
		return fmt.Errorf("sync terminated: %w", err)
	}
	logger.Info("stopped", "cursor", engine.Cursor())
	return nil
}

func loadConfig(configPath string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFilter reads a JSONC sync filter and returns it as compact JSON
// suitable for the filter query parameter. Empty path means no filter.
func loadFilter(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading filter file: %w", err)
	}
	plain := jsonc.ToJSON(data)
	if !json.Valid(plain) {
		return "", fmt.Errorf("filter file %s is not valid JSON", path)
	}
	return string(plain), nil
}

// printedEvent is the stdout line format.
type printedEvent struct {
	Category string         `json:"category"`
	Type     string         `json:"type,omitempty"`
	RoomID   string         `json:"room_id,omitempty"`
	Sender   string         `json:"sender,omitempty"`
	StateKey *string        `json:"state_key,omitempty"`
	Content  map[string]any `json:"content,omitempty"`
}

// registerPrinters wires one printing listener per requested category.
// With no categories requested, a single generic listener plus the
// categories that bypass generic fan-out covers the whole stream.
// onWriteError is invoked for every failed write.
func registerPrinters(registry *syncer.Registry, names []string, output io.Writer, onWriteError func(error)) error {
	encoder := json.NewEncoder(output)
	print := func(event syncer.Event) {
		err := encoder.Encode(printedEvent{
			Category: event.Category.String(),
			Type:     event.Type,
			RoomID:   event.RoomID,
			Sender:   event.Sender,
			StateKey: event.StateKey,
			Content:  event.Content,
		})
		if err != nil {
			onWriteError(err)
		}
	}

	if len(names) == 0 {
		registry.Register(syncer.CategoryGeneric, print)
		registry.Register(syncer.CategoryEphemeral, print)
		return nil
	}

	for _, name := range names {
		category, err := parseCategory(name)
		if err != nil {
			return err
		}
		registry.Register(category, print)
	}
	return nil
}

func parseCategory(name string) (syncer.Category, error) {
	switch name {
	case "invite":
		return syncer.CategoryInvite, nil
	case "leave":
		return syncer.CategoryLeave, nil
	case "presence":
		return syncer.CategoryPresence, nil
	case "ephemeral":
		return syncer.CategoryEphemeral, nil
	case "generic":
		return syncer.CategoryGeneric, nil
	default:
		return 0, fmt.Errorf("unknown category %q", name)
	}
}
