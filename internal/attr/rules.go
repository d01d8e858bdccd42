package attr

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// probeTail is how far from the end of a class name value ClassNameProbe
// lands. Resolvers are expected to find the final namespace segment there.
const probeTail = 6

// MemberName is the member key a field record produces.
func MemberName(rec Record) string {
	if as, ok := rec.Meta.As(); ok {
		return as
	}
	return rec.Name
}

// FieldLine renders a field member of owner, e.g. "User : email <String>".
func FieldLine(owner string, rec Record) string {
	name := MemberName(rec)
	if typ, ok := rec.Meta.Type(); ok {
		return fmt.Sprintf("%s : %s <%s>", owner, name, typ)
	}
	return fmt.Sprintf("%s : %s", owner, name)
}

// EncryptedFieldLine renders an encrypted field; type metadata is ignored.
func EncryptedFieldLine(owner string, rec Record) string {
	return fmt.Sprintf("%s : %s <encrypted>", owner, rec.Name)
}

// RelationTarget is the node a relation points to: the last segment of
// class_name when present, otherwise the declared identifier.
func RelationTarget(rec Record) string {
	if cn, ok := rec.Meta.ClassName(); ok {
		return LastSegment(cn)
	}
	return rec.Name
}

// RelationLine renders a relation edge, e.g. "User --> Post: has_many".
func RelationLine(owner, target string, rec Record) string {
	return fmt.Sprintf("%s --> %s: %s", owner, target, rec.Keyword)
}

// LastSegment drops module qualifiers: "Blog::Post" -> "Post".
func LastSegment(name string) string {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[i+2:]
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// ClassNameProbe returns a byte offset inside doc at which a definition
// lookup for value should be attempted. It finds the first occurrence of
// value and steps back probeTail characters from its end, aiming at the
// final namespace segment. The offset is always on a rune boundary. This is
// a heuristic: a resolver that reports exact spans would make it
// unnecessary.
func ClassNameProbe(doc, value string) (int, bool) {
	if value == "" {
		return 0, false
	}
	start := strings.Index(doc, value)
	if start < 0 {
		return 0, false
	}
	offset := start + len(value)
	for n := 0; n < probeTail && offset > start; n++ {
		_, size := utf8.DecodeLastRuneInString(doc[start:offset])
		offset -= size
	}
	return offset, true
}
