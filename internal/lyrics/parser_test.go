package lyrics

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParseMultiTag(t *testing.T) {
	tl := Parse("[00:01.00][00:02.50]Hello")
	lines := tl.Lines()

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for i, want := range []float64{1.0, 2.5} {
		if !approx(lines[i].Time, want) {
			t.Errorf("line %d: expected time %v, got %v", i, want, lines[i].Time)
		}
		if lines[i].Text != "Hello" {
			t.Errorf("line %d: expected text 'Hello', got '%s'", i, lines[i].Text)
		}
	}
}

func TestParseThreeTagsShareText(t *testing.T) {
	tl := Parse("[00:30.00][01:10.00][02:00.00] Chorus line ")
	if tl.Len() != 3 {
		t.Fatalf("expected 3 lines, got %d", tl.Len())
	}
	for _, l := range tl.Lines() {
		if l.Text != "Chorus line" {
			t.Errorf("expected 'Chorus line', got '%s'", l.Text)
		}
	}
}

func TestParseFractionDigits(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"[00:10.5]x", 10.5},
		{"[00:10.50]x", 10.5},
		{"[00:10.500]x", 10.5},
		{"[00:10.05]x", 10.05},
		{"[00:10.005]x", 10.005},
		{"[00:10]x", 10},
		{"[1:02.25]x", 62.25},
		{"[12:00.1]x", 720.1},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lines := Parse(tt.in).Lines()
			if len(lines) != 1 {
				t.Fatalf("expected 1 line, got %d", len(lines))
			}
			if !approx(lines[0].Time, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, lines[0].Time)
			}
		})
	}
}

func TestParseInstrumentalLine(t *testing.T) {
	lines := Parse("[00:05.00]").Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].Text != "" || !approx(lines[0].Time, 5) {
		t.Errorf("expected empty line at 5s, got %+v", lines[0])
	}
}

func TestParseSkipsMalformed(t *testing.T) {
	input := "[ar:Someone]\n" +
		"no tag at all\n" +
		"[123:45.00]three digit minutes\n" +
		"[01:2.00]one digit seconds\n" +
		"[01:02.1234]four digit fraction\n" +
		"\n" +
		"[00:03.00]kept\r\n"

	lines := Parse(input).Lines()
	if len(lines) != 1 {
		t.Fatalf("expected only the valid line, got %+v", lines)
	}
	if lines[0].Text != "kept" {
		t.Errorf("expected 'kept', got '%s'", lines[0].Text)
	}
}

func TestParseEmpty(t *testing.T) {
	if tl := Parse(""); !tl.Empty() {
		t.Errorf("expected empty timeline, got %d lines", tl.Len())
	}
}

func TestParseOrdering(t *testing.T) {
	input := "[00:20.00]c\n[00:05.00]a\n[00:10.00][00:01.00]b\n[00:05.00]a2"
	lines := Parse(input).Lines()

	for i := 1; i < len(lines); i++ {
		if lines[i].Time < lines[i-1].Time {
			t.Fatalf("timestamps decrease at %d: %v < %v", i, lines[i].Time, lines[i-1].Time)
		}
	}

	// 相同时间戳保持原顺序
	want := []string{"b", "a", "a2", "b", "c"}
	for i, w := range want {
		if lines[i].Text != w {
			t.Errorf("position %d: expected '%s', got '%s'", i, w, lines[i].Text)
		}
		if lines[i].ID != LineID(i) {
			t.Errorf("position %d: expected id %d, got %d", i, i, lines[i].ID)
		}
	}
}

func TestParseSortedInputKeepsOrder(t *testing.T) {
	input := "[00:01.00]one\n[00:02.00]two\n[00:02.00]two again\n[00:03.00]three"
	want := []string{"one", "two", "two again", "three"}

	lines := Parse(input).Lines()
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i, w := range want {
		if lines[i].Text != w {
			t.Errorf("position %d: expected '%s', got '%s'", i, w, lines[i].Text)
		}
	}
}
