package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"chatpilot/pkg/bot"
	"chatpilot/pkg/bridge"
	"chatpilot/pkg/config"
	"chatpilot/pkg/control"
	"chatpilot/pkg/dom"
	"chatpilot/pkg/storage"
)

// defaultPageHTML is the shell document used when no -page snapshot is
// given; the page feed fills it in at runtime.
const defaultPageHTML = `<html><body></body></html>`

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	configFileFlag := flag.String("config", "", "Path to YAML settings file (optional)")
	pageFileFlag := flag.String("page", "", "Path to an initial page HTML snapshot (optional)")
	platformFlag := flag.String("platform", "", "Platform id passed to the selector provider")
	logLevelFlag := flag.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	stateDirFlag := flag.String("state", "state", "Directory for the settings database")
	mcpFlag := flag.String("mcp", "stdio", "Control server transport (stdio, sse, off)")
	portFlag := flag.Int("port", 8080, "HTTP port for the sse transport")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevelFlag)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", *logLevelFlag, err)
	} else {
		log.SetLevel(level)
	}
	if *mcpFlag == "stdio" {
		// Control protocol owns stdout; logs go to stderr
		log.SetOutput(os.Stderr)
	}

	// --- Settings: file defaults, overridden by the persisted record ---
	settings := config.Default()
	if *configFileFlag != "" {
		raw, err := os.ReadFile(*configFileFlag)
		if err != nil {
			log.Fatalf("Read settings file '%s' error: %v", *configFileFlag, err)
		}
		if err := yaml.Unmarshal(raw, &settings); err != nil {
			log.Fatalf("Parse settings file '%s' error: %v", *configFileFlag, err)
		}
	}
	warnings, _ := settings.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	settings.Platform = firstNonEmpty(*platformFlag, settings.Platform)

	// --- Storage ---
	store, err := storage.NewBadgerStore(*stateDirFlag, log.WithField("component", "storage"))
	if err != nil {
		log.Fatalf("Failed to initialize settings database: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if persisted, found, err := store.LoadSettings(ctx); err != nil {
		log.Warnf("Could not load persisted settings: %v", err)
	} else if found {
		log.Info("Persisted settings found, overriding file defaults")
		persisted.Platform = firstNonEmpty(*platformFlag, persisted.Platform)
		settings = persisted
	}

	// --- Page ---
	pageHTML := defaultPageHTML
	if *pageFileFlag != "" {
		raw, err := os.ReadFile(*pageFileFlag)
		if err != nil {
			log.Fatalf("Read page snapshot '%s' error: %v", *pageFileFlag, err)
		}
		pageHTML = string(raw)
	}
	page, err := dom.NewPage(pageHTML, log.WithField("component", "page"))
	if err != nil {
		log.Fatalf("Failed to parse page snapshot: %v", err)
	}

	// --- Signal Handling ---
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	// --- Session ---
	notifier := bridge.NewChannelNotifier(256, log.WithField("component", "bridge"))
	session, err := bot.New(ctx, bot.Options{
		Page:     page,
		Settings: settings,
		Platform: settings.Platform,
		Store:    store,
		Notifier: notifier,
		Logger:   log,
	})
	if err != nil {
		log.Fatalf("Failed to build session: %v", err)
	}

	// Outbound notifications are logged; a popup process would consume these
	go func() {
		for note := range notifier.C() {
			log.WithFields(logrus.Fields{"type": note.Type, "id": note.ID}).Debug("Outbound notification")
		}
	}()

	sessionDone := make(chan error, 1)
	go func() { sessionDone <- session.Run(ctx) }()

	// --- Control Server ---
	if *mcpFlag != "off" {
		selfID := uuid.NewString()
		handler := bridge.NewHandler(selfID, session, log.WithField("component", "bridge"))
		ctrl, err := control.NewServer(&control.ServerConfig{
			SelfID:    selfID,
			Handler:   handler,
			Status:    session.Status,
			Transport: *mcpFlag,
			Port:      *portFlag,
			Logger:    log,
		})
		if err != nil {
			log.Fatalf("Failed to create control server: %v", err)
		}
		go func() {
			if err := ctrl.Run(); err != nil {
				log.Errorf("Control server error: %v", err)
				cancel()
			}
		}()
	}

	err = <-sessionDone
	if err != nil {
		log.Errorf("Session finished with error: %v", err)
		os.Exit(1)
	}
	log.Info("Session finished.")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
