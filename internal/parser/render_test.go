package parser

import "testing"

func TestRenderNoEntitiesRoundTrip(t *testing.T) {
	texts := []string{"", "hello", "Изображение из пятидесяти линий."}
	for _, text := range texts {
		if got := RenderFormattedText(text, nil); got != text {
			t.Errorf("RenderFormattedText(%q, nil) = %q, want unchanged", text, got)
		}
	}
}

func TestRenderSingleBoldEntity(t *testing.T) {
	got := RenderFormattedText("AB", []Entity{{Offset: 0, Length: 1, Tag: TagBold}})
	want := "<b>A</b>B"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderTextURL(t *testing.T) {
	got := RenderFormattedText("click", []Entity{{Offset: 0, Length: 5, Tag: TagTextURL, URL: "http://x"}})
	want := `<a href="http://x">click</a>`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderOffsetLawNonOverlapping(t *testing.T) {
	// Non-overlapping ASCII entities: every opener must precede its
	// closer in the output, and stripping tags recovers the original
	// text (modulo the hashtag prefix, which has no closer to strip).
	text := "hello world from go"
	entities := []Entity{
		{Offset: 0, Length: 5, Tag: TagBold},   // "hello"
		{Offset: 6, Length: 5, Tag: TagItalic}, // "world"
		{Offset: 17, Length: 2, Tag: TagCode},  // "go"
	}
	got := RenderFormattedText(text, entities)

	boldOpen, boldClose := indexOf(got, "<b>"), indexOf(got, "</b>")
	if boldOpen < 0 || boldClose < 0 || boldOpen >= boldClose {
		t.Fatalf("bold opener/closer out of order: %q", got)
	}
	italicOpen, italicClose := indexOf(got, "<i>"), indexOf(got, "</i>")
	if italicOpen < 0 || italicClose < 0 || italicOpen >= italicClose {
		t.Fatalf("italic opener/closer out of order: %q", got)
	}

	stripped := got
	for _, tag := range []string{"<b>", "</b>", "<i>", "</i>", "<code>", "</code>"} {
		stripped = removeAll(stripped, tag)
	}
	if stripped != text {
		t.Fatalf("stripping tags did not recover original text: got %q want %q", stripped, text)
	}
}

func TestRenderHashtagHasNoCloser(t *testing.T) {
	got := RenderFormattedText("news", []Entity{{Offset: 0, Length: 4, Tag: TagHashtag}})
	want := "#news"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderMultibyteOffsetsAreRunePositions(t *testing.T) {
	// "Изображение" entity offsets are Unicode scalar positions, not byte
	// offsets — a multi-byte-per-rune input must still render correctly.
	text := "Изображение"
	got := RenderFormattedText(text, []Entity{{Offset: 0, Length: 2, Tag: TagBold}})
	want := "<b>Из</b>ображение"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func removeAll(s, substr string) string {
	if substr == "" {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		if i+len(substr) <= len(s) && s[i:i+len(substr)] == substr {
			i += len(substr)
			continue
		}
		out = append(out, s[i])
		i++
	}
	return string(out)
}
