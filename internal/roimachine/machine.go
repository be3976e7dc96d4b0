// Package roimachine implements the ROI subscription state machine: it
// decides what to send back to the server based on inbound elements, and
// tracks should-resume/last-processed-message-id across reconnects.
package roimachine

import (
	"io"
	"log/slog"

	"github.com/haphut/roiorbison/internal/messenger"
	"github.com/haphut/roiorbison/internal/metrics"
	"github.com/haphut/roiorbison/internal/queue"
	"github.com/haphut/roiorbison/internal/roiconst"
	"github.com/haphut/roiorbison/internal/xmlelement"
)

// State is one node of the machine's closed state space. Transitions are
// implemented by step as a switch over the current state: each case
// performs that state's entry action (a Messenger send, or reading one
// input element) and returns the next state. The only fields a step
// mutates are should-resume, the remembered message id and the
// last_processed return state, all machine-local fields below.
type State int

const (
	StateReadyToStart State = iota
	StateOwnRootTag
	StateRemoteRootTag
	StateSubscriptionChoice
	StateResumingAttempt
	StateSubscribingAttempt
	StateResumingResponse
	StateSubscribingResponse
	StateLastProcessed
	StateListening
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateReadyToStart:
		return "ready_to_start"
	case StateOwnRootTag:
		return "own_root_tag"
	case StateRemoteRootTag:
		return "remote_root_tag"
	case StateSubscriptionChoice:
		return "subscription_choice"
	case StateResumingAttempt:
		return "resuming_attempt"
	case StateSubscribingAttempt:
		return "subscribing_attempt"
	case StateResumingResponse:
		return "resuming_response"
	case StateSubscribingResponse:
		return "subscribing_response"
	case StateLastProcessed:
		return "last_processed"
	case StateListening:
		return "listening"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Machine is meant to live across several TCP connections: it keeps
// should-resume and the remembered MessageId between Run calls.
type Machine struct {
	input    *queue.Queue[*xmlelement.Element]
	messages *messenger.Messenger
	metrics  *metrics.Metrics
	log      *slog.Logger

	shouldResume    bool
	lastOnMessageID string
	haveOnMessageID bool

	// returnState is where last_processed sends the machine back to once
	// it has replied; it is only meaningful while state == StateLastProcessed.
	returnState State
}

// New creates a Machine in its initial state: should_resume starts true (a
// resume attempt is cheap; the server rejects it if it can't honor it). m
// may be nil, in which case metrics are skipped.
func New(input *queue.Queue[*xmlelement.Element], messages *messenger.Messenger, m *metrics.Metrics, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Machine{
		input:        input,
		messages:     messages,
		metrics:      m,
		log:          log,
		shouldResume: true,
	}
}

// ShouldResume reports whether the next connection attempt should try to
// resume the existing subscription rather than create a new one.
func (m *Machine) ShouldResume() bool { return m.shouldResume }

// Run drives the machine from ready_to_start to closed, consuming from the
// input queue and calling through to the Messenger as each state's entry
// action requires. It returns once the machine reaches closed.
func (m *Machine) Run() {
	state := StateReadyToStart
	for state != StateClosed {
		state = m.step(state)
		m.log.Debug("roi state transition", "state", state.String())
		if m.metrics != nil {
			m.metrics.StateTransitions.WithLabelValues(state.String()).Inc()
		}
	}
}

func (m *Machine) step(state State) State {
	switch state {
	case StateReadyToStart:
		return StateOwnRootTag

	case StateOwnRootTag:
		m.messages.SendOwnRootStartTag()
		return StateRemoteRootTag

	case StateRemoteRootTag:
		received, stop, ok := m.input.Get()
		if !ok || stop {
			return StateClosing
		}
		if received.Name == roiconst.RootName {
			return StateSubscriptionChoice
		}
		m.log.Warn("unexpected element waiting for remote root tag", "tag", received.Name.Local)
		return StateClosing

	case StateSubscriptionChoice:
		if m.shouldResume {
			return StateResumingAttempt
		}
		return StateSubscribingAttempt

	case StateResumingAttempt:
		m.messages.SendResumeSubscription()
		return StateResumingResponse

	case StateSubscribingAttempt:
		m.messages.SendSubscribe()
		return StateSubscribingResponse

	case StateResumingResponse:
		return m.stepResumingResponse()

	case StateSubscribingResponse:
		return m.stepSubscribingResponse()

	case StateLastProcessed:
		m.reactLastProcessed()
		return m.returnState

	case StateListening:
		return m.stepListening()

	case StateClosing:
		m.messages.SendOwnRootEndTag()
		return StateClosed
	}
	return StateClosed
}

func (m *Machine) stepResumingResponse() State {
	received, stop, ok := m.input.Get()
	if !ok || stop {
		return StateClosing
	}
	switch received.Name.Local {
	case roiconst.SubscriptionResumeResponse:
		m.log.Info("resume accepted", "element", received.Name.Local)
		return StateListening
	case roiconst.LastProcessedMessageRequest:
		m.recordOnMessageID(received)
		m.returnState = StateResumingResponse
		return StateLastProcessed
	case roiconst.SubscriptionErrorReport:
		code, _ := received.Attribute("Code")
		if code == roiconst.CodeTooOld {
			// Benign: the server is recovering the production plan from
			// the earliest possible time instead. Keep waiting for the
			// eventual positive response in the same state.
			return StateResumingResponse
		}
		m.log.Warn("resume failed", "code", code)
		m.shouldResume = false
		return StateClosing
	case roiconst.SubscriptionErrorResponse:
		m.log.Warn("resume rejected")
		m.shouldResume = false
		return StateClosing
	default:
		m.log.Warn("unexpected element while resuming", "tag", received.Name.Local)
		return StateClosing
	}
}

func (m *Machine) stepSubscribingResponse() State {
	received, stop, ok := m.input.Get()
	if !ok || stop {
		return StateClosing
	}
	switch received.Name.Local {
	case roiconst.SubscriptionResponse:
		m.shouldResume = true
		m.log.Info("subscribed", "element", received.Name.Local)
		return StateListening
	case roiconst.LastProcessedMessageRequest:
		m.recordOnMessageID(received)
		m.returnState = StateSubscribingResponse
		return StateLastProcessed
	case roiconst.SubscriptionErrorReport, roiconst.SubscriptionErrorResponse:
		// should_resume is set true even on failure here: by the time the
		// server answers a fresh Subscribe at all, the subscription has
		// already been established in the server's view at least once.
		// This matches the original implementation; see DESIGN.md open
		// question before changing it.
		m.shouldResume = true
		m.log.Warn("subscribe failed", "tag", received.Name.Local)
		return StateClosing
	default:
		m.shouldResume = true
		m.log.Warn("unexpected element while subscribing", "tag", received.Name.Local)
		return StateClosing
	}
}

func (m *Machine) stepListening() State {
	received, stop, ok := m.input.Get()
	if !ok || stop {
		return StateClosing
	}
	switch {
	case received.Name.Local == roiconst.LastProcessedMessageRequest:
		m.recordOnMessageID(received)
		m.returnState = StateListening
		return StateLastProcessed
	case received.Name == roiconst.RootName:
		m.log.Warn("remote root end tag received, closing")
		return StateClosing
	default:
		return StateListening
	}
}

func (m *Machine) recordOnMessageID(received *xmlelement.Element) {
	id, ok := received.Attribute("MessageId")
	m.lastOnMessageID = id
	m.haveOnMessageID = ok
	m.log.Debug("recorded last processed message id", "message_id", id)
}

func (m *Machine) reactLastProcessed() {
	if !m.haveOnMessageID {
		// last_processed is only ever entered right after recording a
		// MessageId from the request that triggered it, so this means the
		// machine got here some other way: a protocol defect worth
		// surfacing loudly rather than masking with a substitute value.
		m.log.Error("last_processed entered with no recorded MessageId")
	}
	m.messages.SendLastProcessed(m.lastOnMessageID, m.lastOnMessageID)
}
