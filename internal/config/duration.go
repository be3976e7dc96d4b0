package config

import (
	"fmt"
	"time"

	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"
)

// Duration accepts an ISO-8601 duration string ("PT30S", "P1D"), as required
// by roi.reconnect_interval and mqtt.retained_message_wait_duration and as
// the original implementation's isodate.parse_duration accepts.
type Duration struct {
	time.Duration
}

// UnmarshalYAML decodes an ISO-8601 duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration: %w", err)
	}
	parsed, err := duration.Parse(s)
	if err != nil {
		return fmt.Errorf("config: duration %q: %w", s, err)
	}
	d.Duration = parsed.ToTimeDuration()
	return nil
}
