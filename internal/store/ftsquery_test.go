package store

import "testing"

func TestCompileFTSQuery(t *testing.T) {
	cases := []struct{ in, want string }{
		{"dentist appointment", `"dentist" "appointment"`},
		{`"dark blue cup"`, `"dark blue cup"`},
		{"cats OR dogs", `"cats" OR "dogs"`},
		{"cats AND dogs", `"cats" AND "dogs"`},
		{`"my car" OR bike`, `"my car" OR "bike"`},
		{"what's-this?", `"what's-this?"`},
		{"", ""},
		{"   ", ""},
		{"OR", ""},
		{"cats OR", `"cats"`},
		{`""`, ""},
	}
	for _, tc := range cases {
		if got := CompileFTSQuery(tc.in); got != tc.want {
			t.Errorf("CompileFTSQuery(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}
