package descriptor

import (
	"encoding/xml"

	"github.com/gremid/faust-app/core/xmlstore"
)

// xmlNamespace is the namespace encoding/xml assigns to the xml: prefix.
const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// baseTracker follows xml:base across the element stack. Every element,
// whatever its namespace, pushes one entry.
type baseTracker struct {
	bases []string
}

func newBaseTracker(source string) *baseTracker {
	return &baseTracker{bases: []string{source}}
}

func (t *baseTracker) push(el xml.StartElement) error {
	current := t.current()
	if base, ok := attr(el, xmlNamespace, "base"); ok {
		resolved, err := xmlstore.Resolve(current, base)
		if err != nil {
			return err
		}
		current = resolved
	}
	t.bases = append(t.bases, current)
	return nil
}

func (t *baseTracker) pop() {
	if len(t.bases) > 1 {
		t.bases = t.bases[:len(t.bases)-1]
	}
}

func (t *baseTracker) current() string {
	return t.bases[len(t.bases)-1]
}

func (t *baseTracker) resolve(ref string) (string, error) {
	return xmlstore.Resolve(t.current(), ref)
}
