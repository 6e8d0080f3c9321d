// Command gpiobridge exposes GPIO-wired sensors, relays, and covers as MQTT
// entities with Home Assistant discovery.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gpiobridge/internal/config"
	"gpiobridge/internal/control"
	"gpiobridge/internal/gpio"
	"gpiobridge/internal/mqtt"
	"gpiobridge/internal/status"
	"gpiobridge/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/gpiobridge/config.yaml", "Path to the YAML configuration")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config, \"off\" disables)")
	driver := flag.String("driver", "", "GPIO driver, cdev or periph (overrides config)")
	printState := flag.Bool("print-state", false, "Print raw sensor pin levels and exit")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")

	flag.Parse()

	log := newLogger(*logLevel)
	if err := run(*configPath, *broker, *httpAddr, *driver, *printState, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func run(configPath, brokerOverride, httpOverride, driverOverride string, printState bool, log *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if brokerOverride != "" {
		cfg.MQTT.Broker = brokerOverride
	}
	if httpOverride != "" {
		cfg.Web.Addr = httpOverride
	}
	if httpOverride == "off" {
		cfg.Web.Addr = ""
	}
	if driverOverride != "" {
		cfg.Hardware.Driver = driverOverride
	}

	chip, err := gpio.Open(gpio.Driver(cfg.Hardware.Driver), cfg.Hardware.Chip)
	if err != nil {
		return fmt.Errorf("open gpio: %w", err)
	}
	defer chip.Close()

	if printState {
		return printPinStates(cfg, chip)
	}

	transport, err := mqtt.NewBroker(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.NodeID,
		BaseTopic:      cfg.MQTT.BaseTopic,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		ConnectTimeout: cfg.MQTT.ConnectTimeout.Std(),
	}, log.With("component", "mqtt"))
	if err != nil {
		return err
	}
	defer transport.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:    cfg.MQTT.Broker,
		BaseTopic: cfg.MQTT.BaseTopic,
		HTTPAddr:  cfg.Web.Addr,
		Driver:    cfg.Hardware.Driver,
	})
	registerEntities(tracker, cfg)
	tracker.SetMQTTConnected(transport.IsConnected())

	ctrl, err := control.New(cfg, chip, transport, tracker, log)
	if err != nil {
		return fmt.Errorf("build controller: %w", err)
	}
	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}
	defer ctrl.Shutdown()

	eventTopic := cfg.MQTT.BaseTopic + "/bridge/event"
	startup := status.FormatStatusEvent(tracker.Snapshot(), "STARTUP", "")
	if err := transport.Publish(eventTopic, string(startup), true); err != nil {
		log.Warn("startup event publish failed", "err", err)
	}

	if cfg.Web.Addr != "" {
		srv := web.New(cfg.Web.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", "addr", cfg.Web.Addr)
	}

	// Refresh the connectivity indicator for the status page.
	connTicker := time.NewTicker(5 * time.Second)
	defer connTicker.Stop()
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		for {
			select {
			case <-connDone:
				return
			case <-connTicker.C:
				tracker.SetMQTTConnected(transport.IsConnected())
			}
		}
	}()

	log.Info("started", "broker", cfg.MQTT.Broker, "base_topic", cfg.MQTT.BaseTopic,
		"sensors", len(cfg.Sensors), "actors", len(cfg.Actors), "covers", len(cfg.Covers))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig)

	tracker.SetMQTTConnected(transport.IsConnected())
	shutdown := status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName(sig))
	if err := transport.Publish(eventTopic, string(shutdown), true); err != nil {
		log.Warn("shutdown event publish failed", "err", err)
	}
	return nil
}

// registerEntities seeds the tracker so the status page lists every entity
// before its first publish. The covers' internal relays stay hidden.
func registerEntities(tracker *status.Tracker, cfg *config.Config) {
	internal := make(map[string]bool)
	for _, cov := range cfg.Covers {
		internal[cov.Actor] = true
	}

	for id := range cfg.Covers {
		tracker.Register(id, "cover")
	}
	for id := range cfg.Sensors {
		tracker.Register(id, "sensor")
	}
	for id, a := range cfg.Actors {
		if internal[id] || a.EntityType == config.EntityButton {
			continue
		}
		tracker.Register(id, string(a.EntityType))
	}
}

// printPinStates reads every configured sensor pin once, without
// debouncing, and prints the logical level.
func printPinStates(cfg *config.Config, chip gpio.Chip) error {
	for id, sc := range cfg.Sensors {
		raw, err := chip.ReadPin(sc.Pin)
		if err != nil {
			return fmt.Errorf("read %s (%s): %w", id, sc.Pin, err)
		}
		value := raw != sc.Inverted
		fmt.Printf("%s (%s): %s\n", id, sc.Pin, stateString(value))
	}
	return nil
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
