// Package transcript renders TEI transcripts into text token streams.
package transcript

import (
	"encoding/xml"
	"io"
	"strconv"

	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/core/text"
)

// TEI namespace and the element names the verse index relies on.
const (
	TEINamespace = "http://www.tei-c.org/ns/1.0"
	teiHeader    = "teiHeader"
)

// Stream tokenizes one TEI document lazily. Every element becomes an
// annotation; character data becomes content. The teiHeader subtree is
// skipped.
type Stream struct {
	dec    *xml.Decoder
	closer io.Closer
	source string
	open   []string
	next   int
	skip   int
}

// Tokenize returns a stream over the TEI document read from r. Closing the
// stream closes r.
func Tokenize(r io.ReadCloser, source string) *Stream {
	return &Stream{dec: xml.NewDecoder(r), closer: r, source: source}
}

// Next implements text.Stream.
func (s *Stream) Next() (text.Token, error) {
	for {
		tok, err := s.dec.Token()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			line, _ := s.dec.InputPos()
			return nil, &apperrors.ParseError{Format: "TEI", Path: s.source, Line: line, Message: err.Error()}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if s.skip > 0 || (t.Name.Space == TEINamespace && t.Name.Local == teiHeader) {
				s.skip++
				continue
			}
			s.next++
			id := "a" + strconv.Itoa(s.next)
			s.open = append(s.open, id)
			return text.AnnotationStart{ID: id, Name: t.Name, Data: t.Copy().Attr}, nil
		case xml.EndElement:
			if s.skip > 0 {
				s.skip--
				continue
			}
			id := s.open[len(s.open)-1]
			s.open = s.open[:len(s.open)-1]
			return text.AnnotationEnd{ID: id}, nil
		case xml.CharData:
			if s.skip > 0 || len(s.open) == 0 || len(t) == 0 {
				continue
			}
			return text.Content{Text: string(t)}, nil
		}
	}
}

// Close implements text.Stream.
func (s *Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
