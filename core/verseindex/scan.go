package verseindex

import (
	"errors"
	"io"
	"regexp"
	"strconv"

	"github.com/gremid/faust-app/core/text"
	"github.com/gremid/faust-app/core/transcript"
)

var verseNumber = regexp.MustCompile(`[0-9]+`)

// Range is a half-open character offset range [Start, End).
type Range struct {
	Start int
	End   int
}

func (r Range) String() string {
	return "[" + strconv.Itoa(r.Start) + "," + strconv.Itoa(r.End) + ")"
}

// Verse is one numbered verse occurrence in a text.
type Verse struct {
	Number int
	Range
}

type openVerse struct {
	n     string
	start int
}

// Verses scans a token stream for TEI verse lines (tei:l) carrying an n
// attribute. Offsets count runes of content. Every digit run in n yields
// one Verse, so "3 4" gives verses 3 and 4 over the same range. Digit runs
// that do not fit an int are skipped. The stream is read to the end but not
// closed.
func Verses(s text.Stream) ([]Verse, error) {
	var (
		out    []Verse
		offset int
		open   = map[string]openVerse{}
	)
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case text.Content:
			offset += t.Len()
		case text.AnnotationStart:
			if t.Name.Space != transcript.TEINamespace || t.Name.Local != "l" {
				continue
			}
			if n, ok := t.Attr("n"); ok && n != "" {
				open[t.ID] = openVerse{n: n, start: offset}
			}
		case text.AnnotationEnd:
			v, ok := open[t.ID]
			if !ok {
				continue
			}
			delete(open, t.ID)
			for _, digits := range verseNumber.FindAllString(v.n, -1) {
				n, err := strconv.Atoi(digits)
				if err != nil {
					continue
				}
				out = append(out, Verse{Number: n, Range: Range{Start: v.start, End: offset}})
			}
		}
	}
}
