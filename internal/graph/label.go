package graph

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// labelNamespace seeds deterministic ids for labels with no ASCII content.
var labelNamespace = uuid.MustParse("6f1c2a52-8d0e-4c8e-9a39-0c7c4f3f5e21")

// Normalize reduces a label to its comparison key: NFC, trimmed,
// lower-cased, internal whitespace collapsed to single spaces.
func Normalize(label string) string {
	label = norm.NFC.String(label)
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

func validSlugChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

// Slug derives a stable identifier from a label. Letters and digits survive,
// separators collapse to a single hyphen, everything else is dropped. Labels
// with nothing left (e.g. non-Latin scripts) get a name-based id instead.
func Slug(label string) string {
	key := Normalize(label)
	if key == "" {
		return ""
	}

	var b strings.Builder
	prevHyphen := false
	for _, r := range key {
		if validSlugChar(r) {
			b.WriteRune(r)
			prevHyphen = r == '-'
		} else if r == ' ' || r == '.' || r == '/' || r == '>' {
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-_")
	if slug == "" {
		slug = "n-" + uuid.NewSHA1(labelNamespace, []byte(key)).String()[:8]
	}
	return slug
}
