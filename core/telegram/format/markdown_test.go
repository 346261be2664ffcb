package format

import "testing"

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Иван", "Иван"},
		{"+7 (999) 000-11-11", `\+7 \(999\) 000\-11\-11`},
		{"a_b*c", `a\_b\*c`},
		{`back\slash`, `back\\slash`},
		{"2026-10-14 12:00.", `2026\-10\-14 12:00\.`},
	}
	for _, tt := range tests {
		if got := EscapeMarkdownV2(tt.in); got != tt.want {
			t.Errorf("EscapeMarkdownV2(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCode(t *testing.T) {
	if got := Code("0192f7c4-5a1e"); got != "`0192f7c4-5a1e`" {
		t.Fatalf("Code = %q", got)
	}
	if got := Code("a`b"); got != "`a\\`b`" {
		t.Fatalf("Code = %q", got)
	}
}
