package mqttforward

import (
	"bytes"

	"github.com/haphut/roiorbison/internal/xmlelement"
)

// serializeRoot renders element (expected to be the outer root, with no
// children attached — only its start tag matters here) and strips its
// trailing end tag, so the bytes published as the retained message leave
// the document open for every future subscriber to append children to.
func serializeRoot(element *xmlelement.Element) ([]byte, error) {
	out, err := element.Marshal()
	if err != nil {
		return nil, err
	}
	end := []byte("</" + element.Name.Local + ">")
	out = bytes.TrimRight(out, "\r\n\t ")
	if bytes.HasSuffix(out, end) {
		out = out[:len(out)-len(end)]
	}
	return out, nil
}

// serializeElement renders a non-root element as-is.
func serializeElement(element *xmlelement.Element) ([]byte, error) {
	return element.Marshal()
}
