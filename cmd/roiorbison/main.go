// Command roiorbison bridges a ROI XML-over-TCP subscription feed to an
// MQTT topic: one retained root element, then every subsequent element
// forwarded as its own message.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/haphut/roiorbison/internal/config"
	"github.com/haphut/roiorbison/internal/liveness"
	"github.com/haphut/roiorbison/internal/messenger"
	"github.com/haphut/roiorbison/internal/metrics"
	"github.com/haphut/roiorbison/internal/mqttforward"
	"github.com/haphut/roiorbison/internal/queue"
	"github.com/haphut/roiorbison/internal/roimachine"
	"github.com/haphut/roiorbison/internal/supervisor"
	"github.com/haphut/roiorbison/internal/templater"
	"github.com/haphut/roiorbison/internal/xmlelement"
)

func main() {
	var configPath string
	var logLevel string
	pflag.StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	pflag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, or error")
	pflag.Parse()

	log := newLogger(logLevel)

	if configPath == "" {
		log.Error("missing required flag", "flag", "--config")
		os.Exit(2)
	}

	if err := run(configPath, log); err != nil {
		log.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run(configPath string, log *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	bytesIn := queue.New[[]byte]()
	xmlToMachine := queue.New[*xmlelement.Element]()
	xmlToForward := queue.New[*xmlelement.Element]()
	bytesOut := queue.New[[]byte]()

	counter := &templater.Counter{}
	msgr, err := messenger.New(cfg.ROI.Templates.ToMessengerTemplates(), counter, bytesOut, log.With("component", "messenger"))
	if err != nil {
		return fmt.Errorf("building messenger: %w", err)
	}

	machine := roimachine.New(xmlToMachine, msgr, m, log.With("component", "roimachine"))

	live := liveness.NewLiveness()

	forwardCfg := mqttforward.Config{
		Host:                        cfg.MQTT.Host,
		Port:                        cfg.MQTT.Port,
		Topic:                       cfg.MQTT.Topic,
		QoS:                         cfg.MQTT.QoS,
		ClientID:                    cfg.MQTT.ClientID,
		Transport:                   cfg.MQTT.Transport,
		CACertsPath:                 cfg.MQTT.CACertsPath,
		Username:                    cfg.MQTT.Username,
		Password:                    cfg.MQTT.Password,
		RetainedMessageWaitDuration: cfg.MQTT.RetainedMessageWaitDuration.Duration,
	}
	forwarder := mqttforward.New(forwardCfg, nil, xmlToForward, live, m, log.With("component", "mqttforward"))

	supervisorCfg := supervisor.Config{
		Host:              cfg.ROI.Host,
		Port:              cfg.ROI.Port,
		ReconnectInterval: cfg.ROI.ReconnectInterval.Duration,
	}
	sup := supervisor.New(supervisorCfg, nil, live, machine, bytesIn, xmlToMachine, xmlToForward, bytesOut, m,
		log.With("component", "supervisor"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return forwarder.Run(gctx)
	})
	g.Go(func() error {
		// forwarder.Run blocks on forwardQueue.Get(), which gctx being done
		// cannot by itself unblock; Stop places the poison pill that does.
		<-gctx.Done()
		forwarder.Stop()
		return nil
	})
	g.Go(func() error {
		return sup.Run(gctx)
	})
	g.Go(func() error {
		return metrics.Serve(gctx, cfg.Metrics.ListenAddr, registry, log.With("component", "metrics"))
	})

	err = g.Wait()
	forwarder.Disconnect(250)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
