package strutil

import "testing"

func TestNormalizeUpper(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  k1abc ", "K1ABC"},
		{"K1ABC/p", "K1ABC/P"},
		{"\t1234c\n", "1234C"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := NormalizeUpper(tc.in); got != tc.want {
			t.Fatalf("NormalizeUpper(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
