package mqttforward

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/haphut/roiorbison/internal/liveness"
	"github.com/haphut/roiorbison/internal/metrics"
	"github.com/haphut/roiorbison/internal/queue"
	"github.com/haphut/roiorbison/internal/roiconst"
	"github.com/haphut/roiorbison/internal/xmlelement"
)

// Forwarder filters, serializes and publishes ROI elements read off
// forwardQueue onto one MQTT topic. It owns the one MQTT client the whole
// process uses; no other component touches it. It lives for the entire
// process, across every ROI TCP reconnect: the supervisor only reads the
// Liveness this Forwarder writes, and never disconnects it — only process
// shutdown does, via Disconnect.
type Forwarder struct {
	cfg          Config
	factory      ClientFactory
	forwardQueue *queue.Queue[*xmlelement.Element]
	liveness     *liveness.Liveness
	metrics      *metrics.Metrics
	log          *slog.Logger

	client            mqtt.Client
	rootAlreadyPublished bool
}

// New creates a Forwarder. liveness is shared with the connection
// supervisor, which only ever reads it. m may be nil, in which case metrics
// are skipped.
func New(cfg Config, factory ClientFactory, forwardQueue *queue.Queue[*xmlelement.Element], live *liveness.Liveness, m *metrics.Metrics, log *slog.Logger) *Forwarder {
	if factory == nil {
		factory = DefaultClientFactory
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Forwarder{
		cfg:          cfg,
		factory:      factory,
		forwardQueue: forwardQueue,
		liveness:     live,
		metrics:      m,
		log:          log,
	}
}

// Run probes for an already-retained root tag, connects the main client,
// publishes the root once (unless already retained) and then forwards
// every subsequent element until ctx is done or the forward queue yields
// its poison pill (process shutdown only — this queue is never poisoned
// between TCP sessions).
func (f *Forwarder) Run(ctx context.Context) error {
	retained := ProbeRetained(f.cfg, f.factory, f.log)
	f.rootAlreadyPublished = IsRootAlreadyPublished(retained)
	if f.rootAlreadyPublished {
		f.log.Debug("root start tag already published as a retained message")
	} else {
		f.log.Warn("root start tag has not been published as a retained message previously")
	}

	opts, err := baseClientOptions(f.cfg, f.cfg.ClientID)
	if err != nil {
		return fmt.Errorf("mqttforward: %w", err)
	}
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		f.log.Info("mqtt connection attempt succeeded")
		f.liveness.SetConnected()
		if f.metrics != nil {
			f.metrics.MQTTConnected.Set(1)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		f.log.Warn("lost mqtt connection", "error", err)
		f.liveness.SetDisconnected()
		if f.metrics != nil {
			f.metrics.MQTTConnected.Set(0)
			f.metrics.MQTTReconnects.Inc()
		}
	})

	f.client = f.factory(opts)
	token := f.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttforward: connect: %w", err)
	}

	select {
	case <-f.liveness.Connected():
	case <-ctx.Done():
		return ctx.Err()
	}

	if !f.rootAlreadyPublished {
		if err := f.publishRoot(ctx); err != nil {
			return err
		}
	}
	return f.publishBody(ctx)
}

func (f *Forwarder) publishRoot(ctx context.Context) error {
	for {
		elem, stop, ok := f.forwardQueue.Get()
		if !ok || stop {
			return nil
		}
		if elem.Name != roiconst.RootName {
			payload, _ := serializeElement(elem)
			f.log.Warn("dropping non-root element before root has been published", "payload", string(payload))
			if f.metrics != nil {
				f.metrics.ElementsDropped.WithLabelValues("unexpected_before_root").Inc()
			}
			continue
		}
		payload, err := serializeRoot(elem)
		if err != nil {
			f.log.Warn("failed to serialize root element", "error", err)
			if f.metrics != nil {
				f.metrics.ElementsDropped.WithLabelValues("serialize_error").Inc()
			}
			continue
		}
		token := f.client.Publish(f.cfg.Topic, f.cfg.QoS, true, payload)
		done := make(chan struct{})
		go func() { token.Wait(); close(done) }()
		select {
		case <-done:
			if err := token.Error(); err != nil {
				f.log.Warn("failed to publish retained root element", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		f.rootAlreadyPublished = true
		return nil
	}
}

func (f *Forwarder) publishBody(ctx context.Context) error {
	for {
		elem, stop, ok := f.forwardQueue.Get()
		if !ok || stop {
			return nil
		}
		if elem.Name == roiconst.RootName {
			continue
		}
		payload, err := serializeElement(elem)
		if err != nil {
			f.log.Warn("failed to serialize element", "error", err)
			if f.metrics != nil {
				f.metrics.ElementsDropped.WithLabelValues("serialize_error").Inc()
			}
			continue
		}
		f.client.Publish(f.cfg.Topic, f.cfg.QoS, false, payload)
		if f.metrics != nil {
			f.metrics.ElementsForwarded.Inc()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Stop wakes a blocked Run by placing the forward queue's poison pill; call
// this only at process shutdown.
func (f *Forwarder) Stop() {
	f.forwardQueue.PutStop()
}

// Disconnect tears down the MQTT client. Per the engine's contract this is
// only ever called at process shutdown, never between ROI TCP sessions.
func (f *Forwarder) Disconnect(quiesceMillis uint) {
	if f.client != nil {
		f.client.Disconnect(quiesceMillis)
	}
}
