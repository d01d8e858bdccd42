// Package attr extracts declaration-style attributes such as
// `field :email, :type => String` or `has_many :posts` from single lines
// of source text. It is a pattern matcher, not a parser: a line either
// looks like a declaration or it is ignored.
package attr

import (
	"regexp"
	"strings"
)

// Category decides what a matched keyword contributes to a diagram.
type Category int

const (
	// CategoryUnknown marks a declaration whose keyword is outside the
	// vocabulary.
	CategoryUnknown Category = iota
	CategoryField
	CategoryEncryptedField
	CategoryRelation
)

func (c Category) String() string {
	switch c {
	case CategoryField:
		return "field"
	case CategoryEncryptedField:
		return "encrypted_field"
	case CategoryRelation:
		return "relation"
	default:
		return "unknown"
	}
}

// Vocabulary maps leading keywords to their category.
type Vocabulary map[string]Category

// DefaultVocabulary covers Mongoid and ActiveRecord model declarations.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		"field":                   CategoryField,
		"encrypted_field":         CategoryEncryptedField,
		"has_many":                CategoryRelation,
		"has_one":                 CategoryRelation,
		"belongs_to":              CategoryRelation,
		"has_and_belongs_to_many": CategoryRelation,
		"embeds_many":             CategoryRelation,
		"embeds_one":              CategoryRelation,
		"embedded_in":             CategoryRelation,
	}
}

// Record is one matched declaration.
type Record struct {
	Keyword  string
	Category Category
	Name     string
	Meta     Metadata
}

var (
	keywordPattern = regexp.MustCompile(`^([a-z_][a-z0-9_]*)(\s+|\s*\()`)
	namePattern    = regexp.MustCompile(`^(?::([A-Za-z_]\w*[?!]?)|"([^"]+)"|'([^']+)')`)
	pairPattern    = regexp.MustCompile(`(?::(\w+)\s*=>|(\w+):)\s*("[^"]*"|'[^']*'|[^,]+)`)
)

// Extractor matches lines against a vocabulary.
type Extractor struct {
	vocab Vocabulary
}

// New returns an extractor for vocab. A nil vocab uses DefaultVocabulary.
func New(vocab Vocabulary) *Extractor {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Extractor{vocab: vocab}
}

// Parse matches a single line. The second result is false when the line is
// not shaped like `keyword :name[, key: value...]`, which is the common
// case. A declaration whose keyword is not in the vocabulary is returned
// with CategoryUnknown so callers can report it.
func (e *Extractor) Parse(line string) (Record, bool) {
	text := strings.TrimSpace(stripComment(line))

	m := keywordPattern.FindStringSubmatch(text)
	if m == nil {
		return Record{}, false
	}
	keyword := m[1]
	category := e.vocab[keyword]

	rest := text[len(m[0]):]
	if strings.Contains(m[2], "(") {
		rest = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), ")"))
	}

	nm := namePattern.FindStringSubmatch(rest)
	if nm == nil {
		return Record{}, false
	}
	name := firstNonEmpty(nm[1], nm[2], nm[3])
	rest = strings.TrimSpace(rest[len(nm[0]):])

	rec := Record{Keyword: keyword, Category: category, Name: name}
	switch {
	case rest == "":
	case strings.HasPrefix(rest, ","):
		rec.Meta = parseMetadata(rest[1:])
	case strings.HasPrefix(rest, "do"), strings.HasPrefix(rest, "{"):
	default:
		return Record{}, false
	}
	return rec, true
}

func parseMetadata(s string) Metadata {
	var meta Metadata
	for _, m := range pairPattern.FindAllStringSubmatch(s, -1) {
		key := firstNonEmpty(m[1], m[2])
		meta = append(meta, Pair{Key: key, Value: unquote(strings.TrimSpace(m[3]))})
	}
	return meta
}

// stripComment cuts line at the first `#` outside a string literal.
// Interpolation inside double quotes stays part of the literal.
func stripComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#':
			return line[:i]
		}
	}
	return line
}

func unquote(v string) string {
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if (first == '"' || first == '\'') && first == last {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
