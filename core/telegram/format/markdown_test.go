package format

import "testing"

func TestEscapeV2(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"50% off (today only)!", `50% off \(today only\)\!`},
		{"a_b*c[d]e.f", `a\_b\*c\[d\]e\.f`},
		{"кофе -20%", `кофе \-20%`},
	}
	for _, tc := range cases {
		if got := EscapeV2(tc.in); got != tc.want {
			t.Errorf("EscapeV2(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLinkEscapesURL(t *testing.T) {
	got := Link("deal (hot)", "https://example.com/a)b")
	want := `[deal \(hot\)](https://example.com/a\)b)`
	if got != want {
		t.Errorf("Link() = %q, want %q", got, want)
	}
}
