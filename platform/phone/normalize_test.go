package phone

import "testing"

func TestParseE164(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+31 6 12345678", "+31612345678", true},
		{"06 12345678", "+31612345678", true},
		{"", "", false},
		{"not a number", "", false},
	}

	for _, tc := range cases {
		got, ok := ParseE164(tc.in, DefaultRegion)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseE164(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
