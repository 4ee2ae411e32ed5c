package textmatch

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"casefold", "Hello World", "hello world"},
		{"punctuation stripped", "cell-wall, rigid!", "cellwall rigid"},
		{"whitespace collapsed", "  a \t b\n c ", "a b c"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		if got := Levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("Levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio("photosynthesis", "photosynthesis"); got != 100 {
		t.Errorf("identical strings = %v, want 100", got)
	}
	if got := Ratio("", "anything"); got != 0 {
		t.Errorf("empty side = %v, want 0", got)
	}
	if got := Ratio("Photosynthesis.", "photosynthesis"); got != 100 {
		t.Errorf("normalization should erase case/punctuation: got %v", got)
	}
	mid := Ratio("plants make food from light", "plants produce food using light")
	if mid <= 0 || mid >= 100 {
		t.Errorf("partial overlap = %v, want strictly between 0 and 100", mid)
	}
}

func TestLengthHeuristic(t *testing.T) {
	if got := LengthHeuristic(""); got != 0 {
		t.Errorf("empty answer = %v, want 0", got)
	}
	short := LengthHeuristic("brief")
	long := LengthHeuristic(makeText(900))
	if short < 10 || short > 80 {
		t.Errorf("short answer = %v, want within 10..80", short)
	}
	if long != 80 {
		t.Errorf("long answer = %v, want capped at 80", long)
	}
	if short >= long {
		t.Errorf("longer answers should score higher: %v >= %v", short, long)
	}
}

func makeText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
