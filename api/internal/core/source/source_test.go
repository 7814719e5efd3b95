package source_test

import (
	"testing"

	"github.com/infrakt/infrakt/api/internal/core/source"
)

func TestInjectTokenInURL_GithubOnly(t *testing.T) {
	got := source.InjectTokenInURL("https://github.com/acme/site.git", "ghp_abc123")
	want := "https://ghp_abc123@github.com/acme/site.git"
	if got != want {
		t.Errorf("InjectTokenInURL() = %q, want %q", got, want)
	}
}

func TestInjectTokenInURL_NonGithubPassesThrough(t *testing.T) {
	in := "https://gitlab.com/acme/site.git"
	got := source.InjectTokenInURL(in, "ghp_abc123")
	if got != in {
		t.Errorf("InjectTokenInURL() = %q, want unchanged %q", got, in)
	}
}

func TestInjectTokenInURL_InvalidURLPassesThrough(t *testing.T) {
	in := "::not a url::"
	got := source.InjectTokenInURL(in, "ghp_abc123")
	if got != in {
		t.Errorf("InjectTokenInURL() = %q, want unchanged %q", got, in)
	}
}
