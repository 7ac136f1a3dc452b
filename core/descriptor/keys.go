package descriptor

import (
	"encoding/xml"
	"strings"
	"unicode"
)

var legacyNames = map[string]string{
	"idno":       "callnumber",
	"repository": "archive",
}

// Transcript reference elements carry their value in the uri attribute.
var transcriptElements = map[string]bool{
	"textTranscript": true,
	"docTranscript":  true,
}

// metadataKey derives the raw metadata key of a leaf element. Legacy names
// are substituted, and a typed idno becomes callnumber.<type>.
func metadataKey(el xml.StartElement) string {
	local := el.Name.Local
	key := local
	if legacy, ok := legacyNames[local]; ok {
		key = legacy
	}
	if local == "idno" {
		if t, ok := attr(el, "", "type"); ok {
			return key + "." + t
		}
	}
	return key
}

// ConvertKey normalizes a metadata key: camelCase becomes kebab-case and
// every rune that is neither a letter, a digit nor '.' becomes '-'.
// ConvertKey(ConvertKey(k)) == ConvertKey(k) for every k.
func ConvertKey(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 4)
	for i, r := range key {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' {
			r = '-'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func attr(el xml.StartElement, space, local string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}
