package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"+7 (900) 123-45-67", "+79001234567"},
		{"8 900 123 45 67", "89001234567"},
		{"abc", ""},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestE164(t *testing.T) {
	tests := []struct{ in, want string }{
		{"+7 (900) 123-45-67", "+79001234567"},
		{"8 900 123 45 67", "+79001234567"},
		{"9001234567", "+9001234567"},
		{"", ""},
		{"---", ""},
	}
	for _, tc := range tests {
		if got := E164(tc.in); got != tc.want {
			t.Errorf("E164(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
