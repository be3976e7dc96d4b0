package config

import (
	"errors"
	"fmt"
)

// ValidationError aggregates every problem found in a Config so startup
// reports them all at once instead of failing on the first missing key.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	msg := "config: invalid configuration:"
	for _, p := range e.Problems {
		msg += "\n  - " + p
	}
	return msg
}

// Validate checks that every key the rest of the system depends on is
// present, returning an aggregate *ValidationError if not. The original
// implementation has no equivalent check and fails deep inside whichever
// component first dereferences a missing key; this surfaces all of them at
// once, before anything connects.
func (c *Config) Validate() error {
	var problems []string
	require := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	require(c.ROI.Host != "", "roi.host is required")
	require(c.ROI.Port > 0, "roi.port must be positive")
	require(c.ROI.ReconnectInterval.Duration > 0, "roi.reconnect_interval must be a positive duration")

	requireTemplate := func(name string, t TemplateConfig) {
		require(t.Filename != "", fmt.Sprintf("roi.templates.%s.filename is required", name))
	}
	requireTemplate("own_root_start_tag", c.ROI.Templates.OwnRootStartTag)
	requireTemplate("own_root_end_tag", c.ROI.Templates.OwnRootEndTag)
	requireTemplate("subscribe", c.ROI.Templates.Subscribe)
	requireTemplate("resume_subscription", c.ROI.Templates.ResumeSubscription)
	requireTemplate("last_processed", c.ROI.Templates.LastProcessed)

	require(c.MQTT.Host != "", "mqtt.host is required")
	require(c.MQTT.Port > 0, "mqtt.port must be positive")
	require(c.MQTT.Topic != "", "mqtt.topic is required")
	require(c.MQTT.ClientID != "", "mqtt.client_id is required")
	require(c.MQTT.RetainedMessageWaitDuration.Duration > 0, "mqtt.retained_message_wait_duration must be a positive duration")
	require((c.MQTT.Username == "") == (c.MQTT.Password == ""), "mqtt.username and mqtt.password must both be set or both be empty")

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// IsValidationError reports whether err is a *ValidationError, for callers
// that want to distinguish configuration problems from I/O errors.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
