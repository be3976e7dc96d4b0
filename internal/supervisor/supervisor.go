// Package supervisor owns one ROI TCP session at a time: it wires the
// decoder, state machine and MQTT forwarder's input together, detects
// liveness failures from any of them, tears down in order, and reconnects.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/haphut/roiorbison/internal/liveness"
	"github.com/haphut/roiorbison/internal/metrics"
	"github.com/haphut/roiorbison/internal/queue"
	"github.com/haphut/roiorbison/internal/roimachine"
	"github.com/haphut/roiorbison/internal/xmlelement"
	"github.com/haphut/roiorbison/internal/xmlstream"
)

// connectionReadingBuffer matches the original implementation's 64 KiB
// asyncio.StreamReader buffer limit.
const connectionReadingBuffer = 64 * 1024

// ContextDialer lets tests substitute an in-memory connection instead of a
// real TCP dial, the same seam the teacher library exposes for its own
// client dialing.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config holds the ROI TCP endpoint and reconnect policy.
type Config struct {
	Host              string
	Port              int
	ReconnectInterval time.Duration
}

// Supervisor runs the reconnect loop described in spec §4.6. The four
// TCP-session queues and the Machine are created once and reused across
// every reconnect; only the goroutines reading and writing them are
// restarted each session.
type Supervisor struct {
	cfg     Config
	dialer  ContextDialer
	live    *liveness.Liveness
	log     *slog.Logger

	bytesIn      *queue.Queue[[]byte]
	xmlToMachine *queue.Queue[*xmlelement.Element]
	xmlToForward *queue.Queue[*xmlelement.Element]
	bytesOut     *queue.Queue[[]byte]
	machine      *roimachine.Machine
	metrics      *metrics.Metrics
}

// New creates a Supervisor. xmlToForward is shared with the MQTT forwarder
// and is never drained or closed here — it outlives every TCP session. m may
// be nil, in which case metrics are skipped.
func New(cfg Config, dialer ContextDialer, live *liveness.Liveness, machine *roimachine.Machine,
	bytesIn *queue.Queue[[]byte], xmlToMachine, xmlToForward *queue.Queue[*xmlelement.Element],
	bytesOut *queue.Queue[[]byte], m *metrics.Metrics, log *slog.Logger) *Supervisor {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{
		cfg:          cfg,
		dialer:       dialer,
		live:         live,
		log:          log,
		bytesIn:      bytesIn,
		xmlToMachine: xmlToMachine,
		xmlToForward: xmlToForward,
		bytesOut:     bytesOut,
		machine:      machine,
		metrics:      m,
	}
}

// Run loops until ctx is done, running one TCP session per iteration.
func (s *Supervisor) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.live.Connected():
		}

		if s.metrics != nil {
			s.metrics.ROIReconnects.Inc()
		}
		conn, err := s.dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			s.log.Warn("roi connection problem", "error", err)
			if !s.sleepOrDone(ctx) {
				return ctx.Err()
			}
			continue
		}

		s.runSession(ctx, conn)

		if !s.sleepOrDone(ctx) {
			return ctx.Err()
		}
	}
}

func (s *Supervisor) sleepOrDone(ctx context.Context) bool {
	s.log.Info("waiting before reconnecting", "interval", s.cfg.ReconnectInterval)
	timer := time.NewTimer(s.cfg.ReconnectInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// runSession starts the five workers over conn, waits for the first to
// finish (the failure edge, since none should finish under healthy
// operation), and tears down in order.
func (s *Supervisor) runSession(ctx context.Context, conn net.Conn) {
	sessionCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	decoder := xmlstream.New(s.bytesIn, s.xmlToMachine, s.xmlToForward, s.metrics, s.log)

	readerDone := make(chan struct{})
	decoderDone := make(chan error, 1)
	writerDone := make(chan struct{})
	machineDone := make(chan struct{})
	firstDone := make(chan string, 5)

	var readerCancel = make(chan struct{})

	go func() {
		defer close(readerDone)
		s.readerLoop(conn, readerCancel)
		firstDone <- "reader"
	}()
	go func() {
		err := decoder.KeepParsing()
		decoderDone <- err
		firstDone <- "decoder"
	}()
	go func() {
		defer close(writerDone)
		s.writerLoop(conn)
		firstDone <- "writer"
	}()
	go func() {
		defer close(machineDone)
		s.machine.Run()
		firstDone <- "machine"
	}()
	go func() {
		select {
		case <-s.live.Disconnected():
			firstDone <- "mqtt_disconnected"
		case <-sessionCtx.Done():
		}
	}()

	select {
	case who := <-firstDone:
		s.log.Warn("roi session ending", "trigger", who)
	case <-ctx.Done():
	}

	// Orderly teardown: order matters, each step reclaims one queue.
	cancelWatch()
	close(readerCancel)
	<-readerDone

	s.bytesIn.PutStop()
	<-decoderDoneOrNil(decoderDone)

	s.xmlToMachine.PutStop()
	<-machineDone

	s.bytesOut.PutStop()
	<-writerDone

	s.bytesIn.Drain()
	s.xmlToMachine.Drain()
	s.bytesOut.Drain()

	conn.Close()
}

func decoderDoneOrNil(ch <-chan error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		<-ch
		close(done)
	}()
	return done
}

// readerLoop reads raw chunks from conn into bytesIn until EOF, a read
// error, or cancel is closed (in which case a past read deadline aborts any
// in-flight Read).
func (s *Supervisor) readerLoop(conn net.Conn, cancel <-chan struct{}) {
	go func() {
		<-cancel
		conn.SetReadDeadline(time.Now())
	}()

	buf := make([]byte, connectionReadingBuffer)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.bytesIn.Put(chunk)
		}
		if err != nil {
			select {
			case <-cancel:
				// Deliberate cancellation, not a protocol failure.
			default:
				s.log.Warn("roi server has closed tcp connection", "error", err)
			}
			return
		}
	}
}

// writerLoop drains bytesOut into conn until its poison pill arrives or a
// write fails.
func (s *Supervisor) writerLoop(conn net.Conn) {
	bw := bufio.NewWriter(conn)
	for {
		payload, stop, ok := s.bytesOut.Get()
		if !ok || stop {
			return
		}
		if _, err := bw.Write(payload); err != nil {
			s.log.Warn("roi tcp writing exception", "error", err)
			return
		}
		if err := bw.Flush(); err != nil {
			s.log.Warn("roi tcp writing exception", "error", err)
			return
		}
	}
}
