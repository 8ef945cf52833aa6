package description

import "testing"

func TestBuilderAppendsSections(t *testing.T) {
	b := NewBuilder("Morning run around the park")
	b.Add("🔥 Calories:", "🔥 Calories: 450 kcal")
	b.Add("", "Felt great today")

	got := b.String()
	want := "Morning run around the park\n\n🔥 Calories: 450 kcal\n\nFelt great today"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuilderReplaceByHeaderKeepsOrder(t *testing.T) {
	b := NewBuilder("")
	b.Add("🔥 Calories:", "🔥 Calories: 450 kcal")
	b.Add("🏷 Tags:", "🏷 Tags: tempo")
	b.Add("🔥 Calories:", "🔥 Calories: 512 kcal")

	got := b.String()
	want := "🔥 Calories: 512 kcal\n\n🏷 Tags: tempo"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuilderHeaderlessNeverReplaced(t *testing.T) {
	b := NewBuilder("")
	b.Add("", "first note")
	b.Add("", "second note")

	if got, want := b.String(), "first note\n\nsecond note"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuilderRendersHeaderWhenBodyOmitsIt(t *testing.T) {
	b := NewBuilder("")
	b.Add("📋 Notes:", "took it easy")

	if got, want := b.String(), "📋 Notes:\ntook it easy"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuilderRemove(t *testing.T) {
	b := NewBuilder("base")
	b.Add("🔥 Calories:", "🔥 Calories: 100 kcal")
	b.Remove("🔥 Calories:")

	if b.Has("🔥 Calories:") {
		t.Error("section should be removed")
	}
	if got := b.String(); got != "base" {
		t.Errorf("got %q, want %q", got, "base")
	}
}

func TestBuilderEmpty(t *testing.T) {
	b := NewBuilder("")
	if got := b.String(); got != "" {
		t.Errorf("empty builder should render empty string, got %q", got)
	}
}

func TestFromSectionsRoundTrip(t *testing.T) {
	b := NewBuilder("base")
	b.Add("🔥 Calories:", "🔥 Calories: 450 kcal")
	b.Add("", "free text")

	rebuilt := FromSections("base", b.Sections())
	if rebuilt.String() != b.String() {
		t.Errorf("round trip mismatch: %q vs %q", rebuilt.String(), b.String())
	}
}
