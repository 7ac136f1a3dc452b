// Package text defines the token streams transcripts are rendered into.
//
// A stream interleaves content chunks with the start and end of annotations.
// Offsets into the flattened text are counted in runes of Content tokens.
package text

import (
	"context"
	"encoding/xml"
	"io"
	"unicode/utf8"
)

// Token is one of Content, AnnotationStart or AnnotationEnd.
type Token interface {
	token()
}

// Content is a chunk of text.
type Content struct {
	Text string
}

// Len returns the length of the chunk in runes.
func (c Content) Len() int {
	return utf8.RuneCountInString(c.Text)
}

// AnnotationStart opens the annotation ID. Name is the qualified name of the
// markup it was derived from and Data its attributes.
type AnnotationStart struct {
	ID   string
	Name xml.Name
	Data []xml.Attr
}

// Attr returns the value of the attribute local in no namespace.
func (a AnnotationStart) Attr(local string) (string, bool) {
	for _, at := range a.Data {
		if at.Name.Space == "" && at.Name.Local == local {
			return at.Value, true
		}
	}
	return "", false
}

// AnnotationEnd closes the annotation ID.
type AnnotationEnd struct {
	ID string
}

func (Content) token()         {}
func (AnnotationStart) token() {}
func (AnnotationEnd) token()   {}

// Stream is a lazy, finite token sequence. It cannot be restarted. Next
// returns io.EOF after the last token.
type Stream interface {
	Next() (Token, error)
	Close() error
}

// Transcripts renders documents into token streams.
type Transcripts interface {
	// Textual returns the textual transcript of a document.
	Textual(ctx context.Context, documentID int64) (Stream, error)
}

// SliceStream replays a fixed token slice.
type SliceStream struct {
	tokens []Token
	pos    int
}

// NewSliceStream returns a stream over tokens.
func NewSliceStream(tokens ...Token) *SliceStream {
	return &SliceStream{tokens: tokens}
}

// Next implements Stream.
func (s *SliceStream) Next() (Token, error) {
	if s.pos >= len(s.tokens) {
		return nil, io.EOF
	}
	t := s.tokens[s.pos]
	s.pos++
	return t, nil
}

// Close implements Stream.
func (s *SliceStream) Close() error {
	return nil
}

// Collect drains s and closes it.
func Collect(s Stream) ([]Token, error) {
	defer s.Close()
	var tokens []Token
	for {
		t, err := s.Next()
		if err == io.EOF {
			return tokens, nil
		}
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, t)
	}
}

// Plain returns the concatenated content of tokens.
func Plain(tokens []Token) string {
	var n int
	for _, t := range tokens {
		if c, ok := t.(Content); ok {
			n += len(c.Text)
		}
	}
	buf := make([]byte, 0, n)
	for _, t := range tokens {
		if c, ok := t.(Content); ok {
			buf = append(buf, c.Text...)
		}
	}
	return string(buf)
}
