// Package descriptor reads document descriptors into material unit trees.
//
// A descriptor is parsed as a stream of XML tokens by a small state machine.
// All state lives in one parseContext; each state function consumes one
// token and returns the state for the next. Units are written to the graph
// as they are opened, so a descriptor is only ever consistent inside the
// transaction that parsed it: a failed parse must roll that transaction back.
package descriptor

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gremid/faust-app/core/document"
	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/core/graph"
	"github.com/gremid/faust-app/core/xmlstore"
	"github.com/gremid/faust-app/internal/logging"
)

// Namespace is the only namespace whose elements are interpreted.
const Namespace = "http://www.faustedition.net/ns"

const format = "descriptor"

type options struct {
	sourceHash string
}

// Option customises a single parse.
type Option func(*options)

// WithSourceHash records the content hash of the source on the document.
func WithSourceHash(hash string) Option {
	return func(o *options) { o.sourceHash = hash }
}

type parseContext struct {
	g        *graph.Graph
	units    *document.MaterialUnitCollection
	archives *document.ArchiveCollection
	dec      *xml.Decoder
	base     *baseTracker
	source   string
	opts     options

	doc    *document.Document
	stack  []*document.MaterialUnit
	order  int
	depth  int
	linked bool

	// metadata section of the unit on top of the stack
	metadata  document.Metadata
	metaDepth int

	// pending metadata leaf
	key        string
	keyDepth   int
	value      strings.Builder
	transcript bool
}

// stateFn handles one token and returns the state for the next.
type stateFn func(c *parseContext, tok xml.Token) (stateFn, error)

// Parse reads one descriptor from r, stores its material units in g and
// links the document to the archive named by its metadata. source is the
// descriptor's URI; it is the initial base for relative references.
//
// A source without a document root yields (nil, nil). On error the units
// already written to g are left in place for the caller's rollback.
func Parse(g *graph.Graph, r io.Reader, source string, opts ...Option) (*document.Document, error) {
	units, err := document.MaterialUnits(g)
	if err != nil {
		return nil, err
	}
	archives, err := document.Archives(g)
	if err != nil {
		return nil, err
	}

	c := &parseContext{
		g:        g,
		units:    units,
		archives: archives,
		dec:      xml.NewDecoder(r),
		base:     newBaseTracker(source),
		source:   source,
	}
	for _, o := range opts {
		o(&c.opts)
	}

	if err := c.run(); err != nil {
		return nil, err
	}
	if c.doc == nil {
		logging.LoggerFromContext(g.Context()).Debug("no document produced", "uri", source)
		return nil, nil
	}
	logging.DescriptorParsed(g.Context(), source, int64(c.doc.ID), c.doc.Count(), "document", c.doc.String())
	return c.doc, nil
}

// ParseSource opens uri in store and parses it.
func ParseSource(g *graph.Graph, store *xmlstore.Store, uri string, opts ...Option) (*document.Document, error) {
	r, err := store.Open(uri)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Parse(g, r, uri, opts...)
}

func (c *parseContext) run() error {
	state := stateFn(unitState)
	for {
		tok, err := c.dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return c.syntaxError(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			c.depth++
			if err := c.base.push(t); err != nil {
				return c.fail("xml:base", err)
			}
			if t.Name.Space == Namespace {
				state, err = state(c, t)
			}
		case xml.EndElement:
			if t.Name.Space == Namespace {
				state, err = state(c, t)
			}
			c.base.pop()
			c.depth--
		case xml.CharData:
			state, err = state(c, t)
		}
		if err != nil {
			return err
		}
	}
}

// unitToken opens or closes a material unit when tok names one. Unit
// elements are structural in every state, metadata sections included.
func (c *parseContext) unitToken(tok xml.Token) (bool, error) {
	switch t := tok.(type) {
	case xml.StartElement:
		if typ, ok := document.TypeFromElement(t.Name.Local); ok {
			return true, c.openUnit(t, typ)
		}
	case xml.EndElement:
		if _, ok := document.TypeFromElement(t.Name.Local); ok {
			return true, c.closeUnit()
		}
	}
	return false, nil
}

// unitState is active outside metadata sections.
func unitState(c *parseContext, tok xml.Token) (stateFn, error) {
	if ok, err := c.unitToken(tok); ok {
		return unitState, err
	}
	if t, ok := tok.(xml.StartElement); ok && t.Name.Local == "metadata" && len(c.stack) > 0 {
		c.metadata = document.Metadata{}
		c.metaDepth = c.depth
		return metadataState, nil
	}
	return unitState, nil
}

// metadataState is active inside a metadata section between leaves.
func metadataState(c *parseContext, tok xml.Token) (stateFn, error) {
	if ok, err := c.unitToken(tok); ok {
		return metadataState, err
	}
	switch t := tok.(type) {
	case xml.StartElement:
		c.key = metadataKey(t)
		c.keyDepth = c.depth
		c.value.Reset()
		if transcriptElements[t.Name.Local] {
			c.transcript = true
			return leafState, c.setTranscript(t)
		}
		return leafState, nil
	case xml.EndElement:
		if c.depth == c.metaDepth {
			return unitState, c.closeMetadata()
		}
	}
	return metadataState, nil
}

// leafState accumulates the text of one metadata leaf, including the text of
// nested elements.
func leafState(c *parseContext, tok xml.Token) (stateFn, error) {
	if ok, err := c.unitToken(tok); ok {
		return leafState, err
	}
	switch t := tok.(type) {
	case xml.CharData:
		if !c.transcript {
			c.value.Write(t)
		}
	case xml.EndElement:
		if c.depth != c.keyDepth {
			return leafState, nil
		}
		if !c.transcript {
			c.metadata.Add(c.key, c.value.String())
		}
		c.key = ""
		c.value.Reset()
		c.transcript = false
		return metadataState, nil
	}
	return leafState, nil
}

func (c *parseContext) top() *document.MaterialUnit {
	return c.stack[len(c.stack)-1]
}

func (c *parseContext) isDocument(u *document.MaterialUnit) bool {
	return c.doc != nil && u == &c.doc.MaterialUnit
}

func (c *parseContext) openUnit(el xml.StartElement, typ document.Type) error {
	var u *document.MaterialUnit
	if len(c.stack) == 0 {
		if !typ.IsDocument() {
			return c.invalid(el.Name.Local, fmt.Sprintf("top-level material unit has wrong type %s", typ))
		}
		if c.doc != nil {
			return c.invalid(el.Name.Local, "descriptor contains more than one document")
		}
		c.doc = document.NewDocument(typ, c.order, c.source)
		c.doc.SourceHash = c.opts.sourceHash
		if err := document.CreateDocument(c.g, c.doc); err != nil {
			return err
		}
		u = &c.doc.MaterialUnit
	} else {
		if typ.IsDocument() {
			return c.invalid(el.Name.Local, fmt.Sprintf("%s unit below top level", typ))
		}
		parent := c.top()
		u = document.NewMaterialUnit(typ, c.order)
		if err := document.CreateUnit(c.g, u, parent); err != nil {
			return err
		}
		parent.Add(u)
	}
	c.order++
	c.stack = append(c.stack, u)
	return c.units.Register(u)
}

func (c *parseContext) closeUnit() error {
	u := c.top()
	c.stack = c.stack[:len(c.stack)-1]
	if !c.isDocument(u) {
		return document.UpdateUnit(c.g, u)
	}
	if n := len(c.doc.Metadata.Values("archive")); n != 1 {
		return c.invalid("archive", fmt.Sprintf("document must be in exactly one archive, found %d", n))
	}
	return document.UpdateDocument(c.g, c.doc)
}

func (c *parseContext) setTranscript(el xml.StartElement) error {
	ref, ok := attr(el, "", "uri")
	if !ok || ref == "" {
		return c.invalid(el.Name.Local+"/@uri", "transcript reference without uri")
	}
	resolved, err := c.base.resolve(ref)
	if err != nil {
		return c.fail(el.Name.Local+"/@uri", err)
	}
	c.top().TranscriptSource = resolved
	return nil
}

func (c *parseContext) closeMetadata() error {
	subject := c.top()
	isDoc := c.isDocument(subject)

	if isDoc {
		archives := c.metadata.Values("archive")
		if len(archives) != 1 {
			return c.invalid("archive", fmt.Sprintf("document must be in exactly one archive, found %d", len(archives)))
		}
		foldCallnumbers(c.metadata, archives[0])
	}

	for _, key := range c.metadata.Keys() {
		subject.Metadata.Set(ConvertKey(key), c.metadata.Values(key)...)
	}
	c.metadata = nil

	if !isDoc || c.linked {
		return nil
	}
	archiveID := subject.Metadata.Value("archive")
	archive, err := c.archives.FindByID(archiveID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return c.fail("archive", fmt.Errorf("invalid archive reference %q: %w", archiveID, err))
		}
		return err
	}
	if err := c.archives.AddDocument(archive, c.doc.ID); err != nil {
		return err
	}
	c.linked = true
	return nil
}

// foldCallnumbers sets the bare callnumber from the first value of every
// callnumber.<archive>* key. With several matching keys the lexically last
// one wins; several values under one key are not disambiguated.
func foldCallnumbers(m document.Metadata, archive string) {
	prefix := "callnumber." + archive
	for _, key := range m.Keys() {
		if strings.HasPrefix(key, prefix) {
			m.Set("callnumber", m.Value(key))
		}
	}
}

func (c *parseContext) line() int {
	line, _ := c.dec.InputPos()
	return line
}

// invalid reports a validation failure at the current position.
func (c *parseContext) invalid(field, message string) error {
	return &apperrors.ParseError{
		Format:  format,
		Path:    c.source,
		Line:    c.line(),
		Message: field + ": " + message,
		Err:     apperrors.NewValidation(field, message),
	}
}

// fail wraps err with the current position.
func (c *parseContext) fail(field string, err error) error {
	return &apperrors.ParseError{
		Format:  format,
		Path:    c.source,
		Line:    c.line(),
		Message: field + ": " + err.Error(),
		Err:     err,
	}
}

func (c *parseContext) syntaxError(err error) error {
	line := c.line()
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		line = se.Line
	}
	return &apperrors.ParseError{Format: format, Path: c.source, Line: line, Message: err.Error()}
}
