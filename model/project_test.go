package model

import "testing"

func TestParseRepoPath(t *testing.T) {
	cases := map[string]string{
		"Filesystem: /srv/repos/acme, trailing.":  "/srv/repos/acme",
		"Path: /srv/repos/acme;":                  "/srv/repos/acme",
		"Directory: /srv/repos/acme":               "/srv/repos/acme",
		"Location: /srv/repos/acme.":                "/srv/repos/acme",
		"no prefix here":                           "",
		"Filesystem: relative/path":                "",
	}
	for in, want := range cases {
		if got := ParseRepoPath(in); got != want {
			t.Errorf("ParseRepoPath(%q) = %q, want %q", in, got, want)
		}
	}
}
