// Package messenger is the typed facade the ROI state machine uses to send
// bytes back to the server: it knows about message shapes, not about
// sockets or state.
package messenger

import (
	"fmt"
	"log/slog"

	"github.com/haphut/roiorbison/internal/queue"
	"github.com/haphut/roiorbison/internal/templater"
)

// TemplateSpec names the embedded template file to load for one outbound
// operation and the default placeholder values to fill it with.
type TemplateSpec struct {
	Filename string
	Mapping  map[string]string
}

// Templates collects the five template specs a Messenger needs, one per
// outbound operation.
type Templates struct {
	OwnRootStartTag   TemplateSpec
	OwnRootEndTag     TemplateSpec
	Subscribe         TemplateSpec
	ResumeSubscription TemplateSpec
	LastProcessed     TemplateSpec
}

// Messenger enqueues exactly one byte payload onto bytesOut per call. It
// holds no retry logic: enqueue is non-blocking on the unbounded bytesOut
// queue, so every send here either succeeds immediately or the process is
// already broken in a way a retry can't fix.
type Messenger struct {
	bytesOut *queue.Queue[[]byte]
	log      *slog.Logger

	ownRootStartTag    *templater.Templater
	ownRootEndTag      *templater.Templater
	subscribe          *templater.Templater
	resumeSubscription *templater.Templater
	lastProcessed      *templater.Templater
}

// New builds a Messenger, loading and compiling all five templates against
// a single shared Counter so MessageId values stay unique across every
// Templater this Messenger (and any sibling Messenger sharing the same
// Counter) owns.
func New(templates Templates, counter *templater.Counter, bytesOut *queue.Queue[[]byte], log *slog.Logger) (*Messenger, error) {
	build := func(spec TemplateSpec) (*templater.Templater, error) {
		body, err := templater.LoadEmbedded(spec.Filename)
		if err != nil {
			return nil, err
		}
		return templater.New(body, spec.Mapping, counter), nil
	}

	ownRootStartTag, err := build(templates.OwnRootStartTag)
	if err != nil {
		return nil, fmt.Errorf("messenger: own_root_start_tag: %w", err)
	}
	ownRootEndTag, err := build(templates.OwnRootEndTag)
	if err != nil {
		return nil, fmt.Errorf("messenger: own_root_end_tag: %w", err)
	}
	subscribe, err := build(templates.Subscribe)
	if err != nil {
		return nil, fmt.Errorf("messenger: subscribe: %w", err)
	}
	resumeSubscription, err := build(templates.ResumeSubscription)
	if err != nil {
		return nil, fmt.Errorf("messenger: resume_subscription: %w", err)
	}
	lastProcessed, err := build(templates.LastProcessed)
	if err != nil {
		return nil, fmt.Errorf("messenger: last_processed: %w", err)
	}

	return &Messenger{
		bytesOut:           bytesOut,
		log:                log,
		ownRootStartTag:    ownRootStartTag,
		ownRootEndTag:      ownRootEndTag,
		subscribe:          subscribe,
		resumeSubscription: resumeSubscription,
		lastProcessed:      lastProcessed,
	}, nil
}

func (m *Messenger) send(t *templater.Templater, extra map[string]string) {
	payload, err := t.Fill(extra)
	if err != nil {
		// New only loads the template files; nothing at startup fills
		// them, so an unresolved placeholder (for example a mapping
		// entry missing from the configuration) first shows up here, on
		// the first send. It is logged and the payload dropped rather
		// than crashing the connection; the process keeps running.
		m.log.Warn("template fill failed", "error", err)
		return
	}
	m.log.Debug("sending", "payload", string(payload))
	m.bytesOut.Put(payload)
}

// SendOwnRootStartTag sends our own root element's start tag.
func (m *Messenger) SendOwnRootStartTag() { m.send(m.ownRootStartTag, nil) }

// SendOwnRootEndTag sends our own root element's end tag.
func (m *Messenger) SendOwnRootEndTag() { m.send(m.ownRootEndTag, nil) }

// SendSubscribe sends a fresh subscription request.
func (m *Messenger) SendSubscribe() { m.send(m.subscribe, nil) }

// SendResumeSubscription sends a request to resume a prior subscription.
func (m *Messenger) SendResumeSubscription() { m.send(m.resumeSubscription, nil) }

// SendLastProcessed replies to a LastProcessedMessageRequest, filling
// onMessageID in as the request being answered and lastProcessedMessageID
// as the last message processed.
func (m *Messenger) SendLastProcessed(onMessageID, lastProcessedMessageID string) {
	m.send(m.lastProcessed, map[string]string{
		"on_message_id":              onMessageID,
		"last_processed_message_id": lastProcessedMessageID,
	})
}
