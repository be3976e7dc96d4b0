package templater

import (
	"strings"
	"testing"
)

func TestFillSubstitutesDefaultsAndMessageID(t *testing.T) {
	counter := &Counter{}
	tpl := New("<Foo Id=\"${message_id}\" Name=\"${name}\"/>", map[string]string{"name": "bar"}, counter)

	out, err := tpl.Fill(nil)
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	want := `<Foo Id="0" Name="bar"/>`
	if string(out) != want {
		t.Errorf("Fill() = %q, want %q", out, want)
	}
}

func TestFillExtraOverridesDefaults(t *testing.T) {
	counter := &Counter{}
	tpl := New("${name}", map[string]string{"name": "default"}, counter)

	out, err := tpl.Fill(map[string]string{"name": "override"})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if string(out) != "override" {
		t.Errorf("Fill() = %q, want override", out)
	}
}

func TestFillMessageIDAlwaysFromCounterEvenIfSupplied(t *testing.T) {
	counter := &Counter{}
	tpl := New("${message_id}", nil, counter)

	out, err := tpl.Fill(map[string]string{"message_id": "999"})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if string(out) != "0" {
		t.Errorf("Fill() = %q, want 0 (counter wins over supplied message_id)", out)
	}
}

func TestFillUnresolvedPlaceholder(t *testing.T) {
	counter := &Counter{}
	tpl := New("${missing}", nil, counter)

	_, err := tpl.Fill(nil)
	if err == nil {
		t.Fatal("Fill() error = nil, want an error for an unresolved placeholder")
	}
}

func TestFillUnterminatedPlaceholder(t *testing.T) {
	counter := &Counter{}
	tpl := New("${oops", nil, counter)

	_, err := tpl.Fill(nil)
	if err == nil {
		t.Fatal("Fill() error = nil, want an error for an unterminated placeholder")
	}
}

func TestCounterSharedAcrossTemplaters(t *testing.T) {
	counter := &Counter{}
	a := New("${message_id}", nil, counter)
	b := New("${message_id}", nil, counter)

	first, _ := a.Fill(nil)
	second, _ := b.Fill(nil)
	if string(first) == string(second) {
		t.Errorf("two Templaters sharing a Counter produced the same message_id: %q", first)
	}
}

func TestLoadEmbeddedKnownFile(t *testing.T) {
	body, err := LoadEmbedded("subscribe.xml")
	if err != nil {
		t.Fatalf("LoadEmbedded() error = %v", err)
	}
	if !strings.Contains(body, "Subscribe") {
		t.Errorf("LoadEmbedded(subscribe.xml) = %q, want it to contain Subscribe", body)
	}
}

func TestLoadEmbeddedMissingFile(t *testing.T) {
	_, err := LoadEmbedded("does_not_exist.xml")
	if err == nil {
		t.Fatal("LoadEmbedded() error = nil, want an error for a missing file")
	}
}
