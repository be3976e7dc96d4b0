package xmlstream

import (
	"testing"

	"github.com/haphut/roiorbison/internal/queue"
	"github.com/haphut/roiorbison/internal/roiconst"
	"github.com/haphut/roiorbison/internal/xmlelement"
)

func feedAndStop(bytesIn *queue.Queue[[]byte], chunks ...string) {
	for _, c := range chunks {
		bytesIn.Put([]byte(c))
	}
	bytesIn.PutStop()
}

func TestKeepParsingEmitsRootThenEachChild(t *testing.T) {
	bytesIn := queue.New[[]byte]()
	machineOut := queue.New[*xmlelement.Element]()
	forwardOut := queue.New[*xmlelement.Element]()
	d := New(bytesIn, machineOut, forwardOut, nil, nil)

	doc := `<ROI:FromPubTransMessages xmlns:ROI="http://www.pubtrans.com/ROI/3.0" MessageId="1">` +
		`<SubscriptionResponse xmlns="http://www.pubtrans.com/ROI/3.0" MessageId="2"/>` +
		`<LastProcessedMessageRequest xmlns="http://www.pubtrans.com/ROI/3.0" MessageId="3" OnMessageId="2"/>`
	feedAndStop(bytesIn, doc)

	done := make(chan error, 1)
	go func() { done <- d.KeepParsing() }()

	root, stop, ok := machineOut.Get()
	if !ok || stop {
		t.Fatalf("first machineOut.Get(): ok=%v stop=%v", ok, stop)
	}
	if root.Name != roiconst.RootName {
		t.Errorf("first emitted element = %v, want the root name", root.Name)
	}

	first, _, _ := machineOut.Get()
	if first.Name.Local != "SubscriptionResponse" {
		t.Errorf("second emitted element = %q, want SubscriptionResponse", first.Name.Local)
	}

	second, _, _ := machineOut.Get()
	if second.Name.Local != "LastProcessedMessageRequest" {
		t.Errorf("third emitted element = %q, want LastProcessedMessageRequest", second.Name.Local)
	}
	if v, ok := second.Attribute("OnMessageId"); !ok || v != "2" {
		t.Errorf("LastProcessedMessageRequest OnMessageId = %q, %v, want 2, true", v, ok)
	}

	bytesIn.PutStop()
	if err := <-done; err != nil {
		t.Fatalf("KeepParsing() error = %v, want nil on a clean poison-pill stop", err)
	}
}

func TestKeepParsingMirrorsToBothOutputs(t *testing.T) {
	bytesIn := queue.New[[]byte]()
	machineOut := queue.New[*xmlelement.Element]()
	forwardOut := queue.New[*xmlelement.Element]()
	d := New(bytesIn, machineOut, forwardOut, nil, nil)

	feedAndStop(bytesIn, `<ROI:FromPubTransMessages xmlns:ROI="http://www.pubtrans.com/ROI/3.0"><X/>`)

	done := make(chan error, 1)
	go func() { done <- d.KeepParsing() }()

	mRoot, _, _ := machineOut.Get()
	fRoot, _, _ := forwardOut.Get()
	if mRoot.Name != fRoot.Name {
		t.Errorf("root name diverged between outputs: machine=%v forward=%v", mRoot.Name, fRoot.Name)
	}

	mChild, _, _ := machineOut.Get()
	fChild, _, _ := forwardOut.Get()
	if mChild.Name.Local != "X" || fChild.Name.Local != "X" {
		t.Errorf("child did not reach both outputs: machine=%v forward=%v", mChild.Name, fChild.Name)
	}

	bytesIn.PutStop()
	<-done
}

func TestKeepParsingRejectsWrongRootElement(t *testing.T) {
	bytesIn := queue.New[[]byte]()
	machineOut := queue.New[*xmlelement.Element]()
	forwardOut := queue.New[*xmlelement.Element]()
	d := New(bytesIn, machineOut, forwardOut, nil, nil)

	feedAndStop(bytesIn, `<SomethingElse/>`)

	if err := d.KeepParsing(); err == nil {
		t.Fatal("KeepParsing() error = nil, want an error for an unexpected root element")
	}
}

func TestKeepParsingStopsCleanlyOnPoisonPillWithNoData(t *testing.T) {
	bytesIn := queue.New[[]byte]()
	machineOut := queue.New[*xmlelement.Element]()
	forwardOut := queue.New[*xmlelement.Element]()
	d := New(bytesIn, machineOut, forwardOut, nil, nil)

	bytesIn.PutStop()

	if err := d.KeepParsing(); err != nil {
		t.Fatalf("KeepParsing() error = %v, want nil when stopped before any bytes arrive", err)
	}
}

func TestKeepParsingEmitsRootBeforeAnyChildIsAttached(t *testing.T) {
	bytesIn := queue.New[[]byte]()
	machineOut := queue.New[*xmlelement.Element]()
	forwardOut := queue.New[*xmlelement.Element]()
	d := New(bytesIn, machineOut, forwardOut, nil, nil)

	feedAndStop(bytesIn, `<ROI:FromPubTransMessages xmlns:ROI="http://www.pubtrans.com/ROI/3.0"><A/><B/>`)

	done := make(chan error, 1)
	go func() { done <- d.KeepParsing() }()

	root, _, _ := machineOut.Get()
	a, _, _ := machineOut.Get()
	b, _, _ := machineOut.Get()

	if len(root.Children) != 0 {
		t.Errorf("root emitted with %d children attached, want 0 (emitted before children arrive)", len(root.Children))
	}
	if a.Name.Local != "A" || b.Name.Local != "B" {
		t.Errorf("children = %q, %q, want A, B", a.Name.Local, b.Name.Local)
	}

	bytesIn.PutStop()
	<-done
}
