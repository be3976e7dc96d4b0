package mqttforward

import (
	"bytes"
	"encoding/xml"
	"io"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/haphut/roiorbison/internal/roiconst"
)

// ProbeRetained opens a separate, transient MQTT session, subscribes to
// cfg.Topic and waits at most cfg.RetainedMessageWaitDuration for a
// retained message. It returns the payload if one arrived (nil otherwise),
// and never returns an error: a probe failure just means "assume not
// published yet", which is the safe default.
func ProbeRetained(cfg Config, factory ClientFactory, log *slog.Logger) []byte {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var (
		mu      sync.Mutex
		payload []byte
		handled bool
		done    = make(chan struct{})
	)

	opts, err := baseClientOptions(cfg, cfg.ClientID)
	if err != nil {
		log.Warn("retained probe: could not build client options", "error", err)
		return nil
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)

	var client mqtt.Client
	finish := func() {
		mu.Lock()
		defer mu.Unlock()
		if handled {
			return
		}
		handled = true
		close(done)
	}

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Debug("retained probe: connected")
		token := c.Subscribe(cfg.Topic, cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			if msg.Topic() == cfg.Topic && msg.Retained() {
				mu.Lock()
				payload = append([]byte(nil), msg.Payload()...)
				mu.Unlock()
			}
			finish()
		})
		go func() {
			token.Wait()
			if err := token.Error(); err != nil {
				log.Warn("retained probe: subscribe failed", "error", err)
				finish()
			}
		}()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Debug("retained probe: connection lost", "error", err)
		finish()
	})

	client = factory(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		log.Warn("retained probe: connect failed", "error", err)
		return nil
	}

	timer := time.NewTimer(cfg.RetainedMessageWaitDuration)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		log.Debug("retained probe: timed out waiting for a retained message")
	}

	client.Unsubscribe(cfg.Topic)
	client.Disconnect(250)

	mu.Lock()
	defer mu.Unlock()
	return payload
}

// IsRootAlreadyPublished parses message's first start tag and reports
// whether it names the ROI root element, meaning the retained message
// already holds a published root start tag.
func IsRootAlreadyPublished(message []byte) bool {
	if message == nil {
		return false
	}
	dec := xml.NewDecoder(bytes.NewReader(message))
	for {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name == roiconst.RootName
		}
	}
}
