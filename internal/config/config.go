// Package config loads and validates the YAML configuration that drives
// every other component: the ROI endpoint and templates, the MQTT
// forwarder, logging, and the optional metrics listener.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/haphut/roiorbison/internal/messenger"
)

// Config is the top-level YAML document.
type Config struct {
	ROI     ROIConfig              `yaml:"roi"`
	MQTT    MQTTConfig             `yaml:"mqtt"`
	Logging map[string]interface{} `yaml:"logging"`
	Metrics MetricsConfig          `yaml:"metrics"`
}

// ROIConfig configures the TCP endpoint and outbound templates.
type ROIConfig struct {
	Host               string             `yaml:"host"`
	Port               int                `yaml:"port"`
	ReconnectInterval  Duration           `yaml:"reconnect_interval"`
	Templates          TemplatesConfig    `yaml:"templates"`
}

// TemplatesConfig mirrors messenger.Templates in YAML-addressable form.
type TemplatesConfig struct {
	OwnRootStartTag    TemplateConfig `yaml:"own_root_start_tag"`
	OwnRootEndTag      TemplateConfig `yaml:"own_root_end_tag"`
	Subscribe          TemplateConfig `yaml:"subscribe"`
	ResumeSubscription TemplateConfig `yaml:"resume_subscription"`
	LastProcessed      TemplateConfig `yaml:"last_processed"`
}

// TemplateConfig names one template file and its default placeholder
// mapping.
type TemplateConfig struct {
	Filename string            `yaml:"filename"`
	Mapping  map[string]string `yaml:"mapping"`
}

// ToMessengerTemplates adapts the config shape to what messenger.New wants.
func (t TemplatesConfig) ToMessengerTemplates() messenger.Templates {
	conv := func(c TemplateConfig) messenger.TemplateSpec {
		return messenger.TemplateSpec{Filename: c.Filename, Mapping: c.Mapping}
	}
	return messenger.Templates{
		OwnRootStartTag:    conv(t.OwnRootStartTag),
		OwnRootEndTag:      conv(t.OwnRootEndTag),
		Subscribe:          conv(t.Subscribe),
		ResumeSubscription: conv(t.ResumeSubscription),
		LastProcessed:      conv(t.LastProcessed),
	}
}

// MQTTConfig configures the forwarder's broker connection.
type MQTTConfig struct {
	Host                        string   `yaml:"host"`
	Port                        int      `yaml:"port"`
	Topic                       string   `yaml:"topic"`
	QoS                         byte     `yaml:"qos"`
	ClientID                    string   `yaml:"client_id"`
	Transport                   string   `yaml:"transport"`
	CACertsPath                 string   `yaml:"ca_certs_path"`
	Username                    string   `yaml:"username"`
	Password                    string   `yaml:"password"`
	RetainedMessageWaitDuration Duration `yaml:"retained_message_wait_duration"`
}

// MetricsConfig configures the optional Prometheus endpoint (§11.6,
// supplemented beyond spec.md). An empty ListenAddr disables it.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
