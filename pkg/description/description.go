// Package description composes activity descriptions from an ordered list of
// sections. Sections are identified by their header (typically emoji + text,
// e.g. "🔥 Calories:"), which lets a re-run or resume replace its own earlier
// contribution instead of blindly appending a duplicate.
package description

import "strings"

// Section is one block of the composed description. A Section with an empty
// Header is free text that can never be replaced, only appended.
type Section struct {
	Header string
	Body   string
}

// Builder accumulates sections on top of a base description.
type Builder struct {
	base     string
	sections []Section
}

func NewBuilder(base string) *Builder {
	return &Builder{base: strings.TrimSpace(base)}
}

// Add appends a section. When a section with the same non-empty header already
// exists, its body is replaced in place and ordering is preserved.
func (b *Builder) Add(header, body string) {
	body = strings.TrimSpace(body)
	if header == "" && body == "" {
		return
	}
	if header != "" {
		for i := range b.sections {
			if b.sections[i].Header == header {
				b.sections[i].Body = body
				return
			}
		}
	}
	b.sections = append(b.sections, Section{Header: header, Body: body})
}

// Remove drops the section with the given header, if present.
func (b *Builder) Remove(header string) {
	if header == "" {
		return
	}
	for i := range b.sections {
		if b.sections[i].Header == header {
			b.sections = append(b.sections[:i], b.sections[i+1:]...)
			return
		}
	}
}

// Has reports whether a section with the given header exists.
func (b *Builder) Has(header string) bool {
	for _, s := range b.sections {
		if s.Header != "" && s.Header == header {
			return true
		}
	}
	return false
}

// Sections returns a copy of the current section list.
func (b *Builder) Sections() []Section {
	out := make([]Section, len(b.sections))
	copy(out, b.sections)
	return out
}

// String renders the description: base text first, then each section separated
// by a blank line. A headed section renders as "header\nbody" unless the body
// already leads with the header (providers often format their own block).
func (b *Builder) String() string {
	var blocks []string
	if b.base != "" {
		blocks = append(blocks, b.base)
	}
	for _, s := range b.sections {
		blocks = append(blocks, renderSection(s))
	}
	return strings.Join(blocks, "\n\n")
}

func renderSection(s Section) string {
	if s.Header == "" {
		return s.Body
	}
	if s.Body == "" {
		return s.Header
	}
	if strings.HasPrefix(s.Body, s.Header) {
		return s.Body
	}
	return s.Header + "\n" + s.Body
}

// FromSections rebuilds a Builder from a previously captured section list.
func FromSections(base string, sections []Section) *Builder {
	b := NewBuilder(base)
	for _, s := range sections {
		b.Add(s.Header, s.Body)
	}
	return b
}
