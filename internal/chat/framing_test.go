package chat

import (
	"strings"
	"testing"
)

// run feeds deltas in order and returns everything the parser emitted,
// including the Finish flush, plus the needs-more-context flag.
func run(deltas ...string) (string, bool) {
	p := NewFrameParser()
	var out strings.Builder
	for _, d := range deltas {
		out.WriteString(p.Feed(d))
	}
	out.WriteString(p.Finish())
	return out.String(), p.NeedsMoreContext()
}

func TestFramingSingleDelta(t *testing.T) {
	body, needsMore := run("BODY_START\n\n2pm Friday @3\n\nBODY_END\n\nNOT_ENOUGH_CONTEXT=false")
	if body != "2pm Friday @3" {
		t.Fatalf("body: expected %q, got %q", "2pm Friday @3", body)
	}
	if needsMore {
		t.Fatalf("expected needs_more_context=false")
	}
}

func TestFramingMarkersStraddleDeltas(t *testing.T) {
	body, needsMore := run(
		"BODY_ST", "ART\n\n2pm Fri", "day @3\n\nBO", "DY_END\n\nNOT_ENOUGH_CONT", "EXT=true",
	)
	if body != "2pm Friday @3" {
		t.Fatalf("body: expected %q, got %q", "2pm Friday @3", body)
	}
	if !needsMore {
		t.Fatalf("expected needs_more_context=true")
	}
}

func TestFramingOneRuneAtATime(t *testing.T) {
	full := "BODY_START\n\nThe midterm covers weeks 1 through 6.\n\nBODY_END\n\nNOT_ENOUGH_CONTEXT=false"
	p := NewFrameParser()
	var out strings.Builder
	for _, r := range full {
		out.WriteString(p.Feed(string(r)))
	}
	out.WriteString(p.Finish())
	if got := out.String(); got != "The midterm covers weeks 1 through 6." {
		t.Fatalf("unexpected body %q", got)
	}
	if p.NeedsMoreContext() {
		t.Fatalf("expected needs_more_context=false")
	}
}

func TestFramingNeverLeaksMarkers(t *testing.T) {
	body, _ := run(
		"BODY_START\nanswer text here BODY", "_END\nNOT_ENOUGH_CONTEXT=false",
	)
	if strings.Contains(body, "BODY_END") || strings.Contains(body, "BODY_START") || strings.Contains(body, "NOT_ENOUGH_CONTEXT") {
		t.Fatalf("framing leaked into body: %q", body)
	}
	if body != "answer text here" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestFramingMissingEndMarker(t *testing.T) {
	// The stream can die mid-body; Finish must flush the held-back tail.
	body, needsMore := run("BODY_START\n\npartial answer that never terminates")
	if body != "partial answer that never terminates" {
		t.Fatalf("unexpected body %q", body)
	}
	if needsMore {
		t.Fatalf("a stream without metadata must report false")
	}
}

func TestFramingNoBodyStart(t *testing.T) {
	body, needsMore := run("the model ignored its instructions entirely")
	if body != "" {
		t.Fatalf("nothing should be emitted before BODY_START, got %q", body)
	}
	if needsMore {
		t.Fatalf("expected needs_more_context=false")
	}
}

func TestFramingTrailingWhitespaceTrimmed(t *testing.T) {
	body, _ := run("BODY_START\n\nanswer\n\n\nBODY_END\nNOT_ENOUGH_CONTEXT=false")
	if body != "answer" {
		t.Fatalf("expected trailing whitespace trimmed, got %q", body)
	}
}

func TestFramingMetadataCaseInsensitiveValue(t *testing.T) {
	_, needsMore := run("BODY_START\nx\nBODY_END\nNOT_ENOUGH_CONTEXT=True")
	if !needsMore {
		t.Fatalf("expected True to parse as true")
	}
}
