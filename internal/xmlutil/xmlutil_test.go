package xmlutil

import "testing"

func TestTagMatchesUnprefixedAndNamespaced(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"unprefixed", "<status>success</status>", "success"},
		{"namespaced", "<a:status>success</a:status>", "success"},
		{"mixed case", "<Status>Success</Status>", "Success"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Tag([]byte(tc.body), "status")
			if !ok {
				t.Fatalf("Tag() ok = false, want true")
			}
			if got != tc.want {
				t.Fatalf("Tag() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTagMissingReturnsFalse(t *testing.T) {
	_, ok := Tag([]byte("<other>x</other>"), "status")
	if ok {
		t.Fatalf("Tag() ok = true for absent tag, want false")
	}
}

func TestTagAllReturnsEveryOccurrence(t *testing.T) {
	body := "<sequence>1</sequence><sequence>2</sequence><sequence>3</sequence>"
	got := TagAll([]byte(body), "sequence")
	want := []string{"1", "2", "3"}
	if len(got) != len(want) {
		t.Fatalf("TagAll() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("TagAll()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
