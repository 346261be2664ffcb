package phone

import "testing"

func TestE164(t *testing.T) {
	n := NewNormalizer("")
	tests := []struct {
		in, want string
	}{
		{"+79990001111", "+79990001111"},
		{"8 (999) 000-11-11", "+79990001111"},
		{"  +7 999 000 11 11 ", "+79990001111"},
		{"звоните вечером", "звоните вечером"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := n.E164(tt.in); got != tt.want {
			t.Errorf("E164(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValid(t *testing.T) {
	n := NewNormalizer("ru")
	if !n.Valid("+79990001111") {
		t.Fatal("expected valid")
	}
	if n.Valid("12") {
		t.Fatal("expected invalid")
	}
}
