// Package xmlconv converts backend JSON payloads into XML fragments for
// inclusion in SOAP responses.
package xmlconv

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)

// FromJSON converts a JSON document into an XML fragment. Objects become
// nested elements named by their sanitized keys, arrays become repeated
// <item> elements in original order, and scalars become escaped text. The
// second return is false when the input is not valid JSON; callers fall back
// to escaping the raw payload as plain text.
func FromJSON(raw string) (string, bool) {
	if !gjson.Valid(raw) {
		return "", false
	}
	var sb strings.Builder
	writeValue(&sb, gjson.Parse(raw))
	return sb.String(), true
}

func writeValue(sb *strings.Builder, value gjson.Result) {
	switch {
	case value.IsObject():
		value.ForEach(func(key, val gjson.Result) bool {
			tag := Sanitize(key.String())
			sb.WriteString("<" + tag + ">")
			writeValue(sb, val)
			sb.WriteString("</" + tag + ">")
			return true
		})
	case value.IsArray():
		value.ForEach(func(_, val gjson.Result) bool {
			sb.WriteString("<item>")
			writeValue(sb, val)
			sb.WriteString("</item>")
			return true
		})
	case value.Type == gjson.Null:
		// nothing
	case value.Type == gjson.String:
		sb.WriteString(Escape(value.Str))
	default:
		// numbers and booleans keep their literal JSON form
		sb.WriteString(Escape(value.Raw))
	}
}

// Sanitize maps an arbitrary key onto a valid XML element name: characters
// outside [A-Za-z0-9_.-] are replaced with "_", a leading character that is
// neither a letter nor "_" gets a "_" prefix, and a blank key becomes
// "field". The function is idempotent.
func Sanitize(name string) string {
	if name == "" {
		return "field"
	}
	sanitized := invalidNameChars.ReplaceAllString(name, "_")
	first := sanitized[0]
	if !isASCIILetter(first) && first != '_' {
		sanitized = "_" + sanitized
	}
	return sanitized
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape replaces the five XML-special characters with entities.
func Escape(value string) string {
	return xmlEscaper.Replace(value)
}
