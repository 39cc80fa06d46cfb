package sanitize

import "testing"

func TestLine(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Sam   Lee ", "Sam Lee"},
		{"<b>Sam</b> Lee", "Sam Lee"},
		{"Sam&lt;script&gt;alert(1)&lt;/script&gt;", "Samalert(1)"},
		{"Sam\tLee\nJr", "Sam Lee Jr"},
		{"Zoe\u0301", "Zo\u00e9"},
		{"Sam\u200bLee", "SamLee"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
	}
	for _, tc := range cases {
		if got := Line(tc.in); got != tc.want {
			t.Errorf("Line(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTextKeepsParagraphs(t *testing.T) {
	in := "Called at 9.\r\n\r\n\r\n\r\nWants a   test drive<br>  \nfriday "
	want := "Called at 9.\n\nWants a test drive\nfriday"
	if got := Text(in); got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestTextEmptyAfterStripping(t *testing.T) {
	if got := Text("<p> </p>"); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
