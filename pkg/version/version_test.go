package version

import "testing"

func TestFromModule(t *testing.T) {
	cases := map[string]string{
		"":        "",
		"(devel)": "",
		"v0.2.0":  "v0.2.0",
	}
	for in, want := range cases {
		if got := fromModule(in); got != want {
			t.Errorf("fromModule(%q): expected %q, got %q", in, want, got)
		}
	}
	if Version == "" {
		t.Error("expected a non-empty version")
	}
}
