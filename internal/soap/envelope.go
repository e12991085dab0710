// Package soap parses inbound SOAP envelopes and enforces WS-Security.
package soap

import (
	"bytes"
	"strings"

	"github.com/beevik/etree"

	"github.com/softslim/soapbridge/internal/errors"
)

// Request is the result of parsing an inbound envelope: the operation
// element's local name, its namespace URI (may be empty), and one parameter
// per immediate child element of the operation element.
type Request struct {
	Operation  string
	Namespace  string
	Parameters map[string]string
}

var doctypePrefix = []byte("<!DOCTYPE")

// ParseDocument parses a raw SOAP request body. DOCTYPE declarations are
// rejected outright; entity expansion beyond the XML built-ins is not
// performed, which closes the XXE class entirely.
func ParseDocument(body []byte) (*etree.Document, error) {
	if containsDoctype(body) {
		return nil, errors.Protocolf("DOCTYPE declarations are not allowed in SOAP requests")
	}

	doc := etree.NewDocument()
	// Strict parsing: undeclared entity references are a parse error.
	doc.ReadSettings.Permissive = false
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, errors.Protocolf("malformed SOAP envelope").Wrap(err)
	}
	if doc.Root() == nil {
		return nil, errors.Protocolf("empty SOAP request")
	}
	return doc, nil
}

// ExtractRequest locates the Body element by local name, takes its first
// child element as the operation, and collects the operation's immediate
// child elements as the parameter map. Duplicate parameter names overwrite.
func ExtractRequest(doc *etree.Document) (*Request, error) {
	body := findByLocalName(doc.Root(), "Body")
	if body == nil {
		return nil, errors.Protocolf("SOAP Body not found")
	}

	operation := firstChildElement(body)
	if operation == nil {
		return nil, errors.Protocolf("no operation element inside SOAP Body")
	}

	req := &Request{
		Operation:  operation.Tag,
		Namespace:  operation.NamespaceURI(),
		Parameters: make(map[string]string),
	}
	for _, child := range operation.ChildElements() {
		req.Parameters[child.Tag] = textContent(child)
	}
	return req, nil
}

// findByLocalName searches depth-first for an element whose local name
// matches, ignoring any namespace prefix.
func findByLocalName(el *etree.Element, localName string) *etree.Element {
	if el == nil {
		return nil
	}
	if el.Tag == localName {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findByLocalName(child, localName); found != nil {
			return found
		}
	}
	return nil
}

func firstChildElement(el *etree.Element) *etree.Element {
	children := el.ChildElements()
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

// textContent concatenates all descendant character data, matching DOM
// getTextContent semantics for nested parameter elements.
func textContent(el *etree.Element) string {
	var sb strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, token := range e.Child {
			switch t := token.(type) {
			case *etree.CharData:
				sb.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(el)
	return sb.String()
}

func containsDoctype(body []byte) bool {
	upper := bytes.ToUpper(body)
	return bytes.Contains(upper, doctypePrefix)
}
