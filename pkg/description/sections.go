package description

import (
	"sort"
	"strings"
	"unicode"
)

// The free functions below operate on already-rendered description text, the
// form uploaders receive back from a destination API. They locate a section by
// its header prefix so an update can swap one block without touching text the
// user edited on the vendor side.

// startsWithSymbol reports whether a line opens with an emoji or other symbol,
// which is how section headers are recognized in free text.
func startsWithSymbol(s string) bool {
	r := []rune(s)
	if len(r) == 0 {
		return false
	}
	return r[0] > 127 || unicode.IsSymbol(r[0])
}

// FindSection locates a section by its header prefix. A section runs from the
// header to the next blank line followed by a symbol-led line, or to the end
// of the text. Returns start, end (exclusive) and whether it was found.
func FindSection(text, header string) (start, end int, found bool) {
	if text == "" || header == "" {
		return 0, 0, false
	}

	start = strings.Index(text, header)
	if start == -1 {
		return 0, 0, false
	}

	rest := text[start+len(header):]
	lines := strings.Split(rest, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" || i+1 >= len(lines) {
			continue
		}
		if startsWithSymbol(strings.TrimSpace(lines[i+1])) {
			end = start + len(header) + strings.Index(rest, "\n"+lines[i+1])
			for end > start && (text[end-1] == '\n' || text[end-1] == ' ') {
				end--
			}
			return start, end, true
		}
	}

	end = len(text)
	for end > start && (text[end-1] == '\n' || text[end-1] == ' ') {
		end--
	}
	return start, end, true
}

// HasSection reports whether the text contains a section with the header.
func HasSection(text, header string) bool {
	_, _, found := FindSection(text, header)
	return found
}

// ExtractSection returns the full section (header included), or "" when the
// text has no such section.
func ExtractSection(text, header string) string {
	start, end, found := FindSection(text, header)
	if !found {
		return ""
	}
	return text[start:end]
}

// SectionHeaders collects the section_header_* values from enrichment
// metadata. Map iteration order is random, so the headers come back sorted to
// keep merges deterministic.
func SectionHeaders(meta map[string]string) []string {
	var headers []string
	for key, val := range meta {
		if strings.HasPrefix(key, "section_header_") && val != "" {
			headers = append(headers, val)
		}
	}
	sort.Strings(headers)
	return headers
}

// MergeRemote merges an enriched description into the one currently stored at
// the destination, preserving whatever the user edited on the vendor side.
// Every flagged section found in the enriched text is swapped into (or
// appended to) the existing text. When no flagged section applies, the whole
// enriched text is appended instead.
func MergeRemote(existing, enriched string, headers []string) string {
	if enriched == "" {
		return existing
	}
	if existing == "" {
		return enriched
	}

	merged := existing
	touched := false
	for _, header := range headers {
		section := ExtractSection(enriched, header)
		if section == "" {
			continue
		}
		merged = ReplaceSection(merged, header, section)
		touched = true
	}
	if touched {
		return merged
	}
	return existing + "\n\n" + enriched
}

// ReplaceSection swaps the section for newContent, appending when the section
// does not exist yet.
func ReplaceSection(text, header, newContent string) string {
	start, end, found := FindSection(text, header)
	if !found {
		if text == "" {
			return newContent
		}
		return text + "\n\n" + newContent
	}

	before := strings.TrimRight(text[:start], "\n ")
	after := strings.TrimLeft(text[end:], "\n ")

	var out strings.Builder
	if before != "" {
		out.WriteString(before)
		out.WriteString("\n\n")
	}
	out.WriteString(newContent)
	if after != "" {
		out.WriteString("\n\n")
		out.WriteString(after)
	}
	return out.String()
}
