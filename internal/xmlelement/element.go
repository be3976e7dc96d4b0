// Package xmlelement defines a detached XML element value usable after the
// stream that produced it has moved on.
package xmlelement

import "encoding/xml"

// Element is a node from an XML document, fully detached from whatever
// parser produced it: attributes, text and children are owned values, not
// slices aliased into a live parse buffer. Holders may retain an Element
// indefinitely.
type Element struct {
	Name     xml.Name
	Attr     []xml.Attr
	CharData string
	Children []*Element
}

// Attribute returns the value of the attribute with the given local name,
// ignoring its namespace, and whether it was present.
func (e *Element) Attribute(local string) (string, bool) {
	for _, a := range e.Attr {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// Clone returns a deep copy of e. Mutating the clone never affects e, and
// vice versa.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	out := &Element{
		Name:     e.Name,
		CharData: e.CharData,
	}
	if e.Attr != nil {
		out.Attr = make([]xml.Attr, len(e.Attr))
		copy(out.Attr, e.Attr)
	}
	if e.Children != nil {
		out.Children = make([]*Element, len(e.Children))
		for i, c := range e.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// Marshal renders e as XML using encoding/xml's own marshaling rules: the
// namespace URI carried in Name.Space is rendered as an xmlns attribute on
// the element that introduces it. The original namespace prefixes (such as
// "ROI:") are not kept; elements come out in default-namespace form.
func (e *Element) Marshal() ([]byte, error) {
	return xml.Marshal(xmlNode{e})
}

// xmlNode adapts Element to encoding/xml's MarshalXML contract so nested
// elements serialize without reflecting over Go-idiomatic field names.
type xmlNode struct {
	el *Element
}

func (n xmlNode) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: n.el.Name, Attr: append([]xml.Attr(nil), n.el.Attr...)}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if n.el.CharData != "" {
		if err := enc.EncodeToken(xml.CharData(n.el.CharData)); err != nil {
			return err
		}
	}
	for _, c := range n.el.Children {
		if err := (xmlNode{c}).MarshalXML(enc, xml.StartElement{}); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}
