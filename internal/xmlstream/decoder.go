// Package xmlstream turns a byte stream into a lazy sequence of the direct
// children of one outer root element, with memory bounded to a single live
// subtree regardless of how long the stream stays open.
package xmlstream

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"

	"github.com/haphut/roiorbison/internal/metrics"
	"github.com/haphut/roiorbison/internal/queue"
	"github.com/haphut/roiorbison/internal/roiconst"
	"github.com/haphut/roiorbison/internal/xmlelement"
)

// Decoder pulls XML out of bytesIn and emits the root start tag once, then
// every direct child of the root, to both machineOut and forwardOut.
type Decoder struct {
	bytesIn    *queue.Queue[[]byte]
	machineOut *queue.Queue[*xmlelement.Element]
	forwardOut *queue.Queue[*xmlelement.Element]
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// New creates a Decoder reading chunks from bytesIn and publishing decoded
// elements to machineOut and forwardOut. m may be nil, in which case
// metrics are skipped.
func New(bytesIn *queue.Queue[[]byte], machineOut, forwardOut *queue.Queue[*xmlelement.Element], m *metrics.Metrics, log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Decoder{bytesIn: bytesIn, machineOut: machineOut, forwardOut: forwardOut, metrics: m, log: log}
}

// queueReader adapts a byte-chunk Queue to io.Reader. Once the queue yields
// its poison pill or is closed, Read reports io.EOF forever; stopped
// distinguishes "we were told to stop" from "the stream genuinely ended",
// which keep_parsing needs to decide whether io.EOF is expected shutdown or
// a parse failure.
type queueReader struct {
	q       *queue.Queue[[]byte]
	buf     []byte
	stopped bool
}

func (r *queueReader) Read(p []byte) (int, error) {
	if r.stopped {
		return 0, io.EOF
	}
	for len(r.buf) == 0 {
		chunk, stop, ok := r.q.Get()
		if !ok || stop {
			r.stopped = true
			return 0, io.EOF
		}
		r.buf = chunk
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// KeepParsing runs until the input queue yields its poison pill (normal
// shutdown, nil returned) or a parse error occurs (logged as a warning,
// non-nil returned so the supervisor treats the connection as failed).
//
// It emits the root start tag on seeing the first StartElement token (which
// must be the ROI root, or this is a parse error), then every element
// completed while exactly one element below the root is open on the decode
// stack (a direct child of the root), or while the root itself closes (the
// decode stack emptying entirely, which signals the remote end closed the
// document).
func (d *Decoder) KeepParsing() error {
	reader := &queueReader{q: d.bytesIn}
	xd := xml.NewDecoder(reader)

	var stack []*xmlelement.Element
	for {
		tok, err := xd.Token()
		if err != nil {
			if reader.stopped {
				return nil
			}
			d.log.Warn("error parsing stream from the ROI server", "error", err)
			return fmt.Errorf("xmlstream: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			elem := &xmlelement.Element{Name: t.Name, Attr: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) == 0 {
				if t.Name != roiconst.RootName {
					d.log.Warn("unexpected root element", "got", t.Name.Local)
					return fmt.Errorf("xmlstream: unexpected root element %v", t.Name)
				}
				d.emit(elem.Clone())
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, elem)
			}
			stack = append(stack, elem)

		case xml.EndElement:
			if len(stack) == 0 {
				// A stray end tag with no matching start: encoding/xml
				// would already have rejected this, but guard anyway.
				continue
			}
			elem := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) <= 1 {
				d.emit(elem.Clone())
				if len(stack) == 1 {
					// Trim: only the currently-processed child may remain
					// attached to the root at any time, and the root's own
					// text between children is not kept either.
					stack[0].Children = stack[0].Children[:0]
					stack[0].CharData = ""
				}
			}

		case xml.CharData:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				top.CharData += string(t)
			}
		}
	}
}

// emit delivers an independent copy of element to each downstream queue, so
// neither side's later mutation (there is none today, but the contract
// holds regardless) can affect the other.
func (d *Decoder) emit(element *xmlelement.Element) {
	d.machineOut.Put(element.Clone())
	d.forwardOut.Put(element.Clone())
	if d.metrics != nil {
		d.metrics.ElementsReceived.Inc()
	}
}
