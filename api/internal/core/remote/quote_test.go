package remote

import (
	"strings"
	"testing"
)

func TestQuote_Simple(t *testing.T) {
	if got := Quote("myapp"); got != "'myapp'" {
		t.Errorf("got %q", got)
	}
}

func TestQuote_Empty(t *testing.T) {
	if got := Quote(""); got != "''" {
		t.Errorf("got %q", got)
	}
}

func TestQuote_EmbeddedSingleQuote(t *testing.T) {
	got := Quote("o'brien")
	want := `'o'\''brien'`
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

// Shell safety property test (spec §8 property 2): quoting any adversarial
// value containing "; rm -rf /" must neutralise it as a single literal
// argument, never as a second shell command.
func TestQuote_AdversarialPayloads(t *testing.T) {
	payloads := []string{
		"; rm -rf /",
		"$(rm -rf /)",
		"`rm -rf /`",
		"a'; rm -rf /; echo '",
		"\nrm -rf /",
		"&& rm -rf /",
		"| rm -rf /",
	}
	for _, p := range payloads {
		quoted := Quote(p)
		cmd := "docker exec c printenv " + quoted
		if !strings.HasPrefix(quoted, "'") || !strings.HasSuffix(quoted, "'") {
			t.Fatalf("quoted payload %q not wrapped in single quotes: %s", p, quoted)
		}
		// The only way a quote can terminate is via the escape sequence
		// '\''; verify there's no unescaped quote boundary leaking the
		// payload as a second command.
		inner := quoted[1 : len(quoted)-1]
		count := strings.Count(inner, "'\\''")
		bareQuotes := strings.Count(inner, "'") - count*3
		if bareQuotes != 0 {
			t.Errorf("payload %q produced unescaped quote boundary in %s (cmd=%s)", p, quoted, cmd)
		}
	}
}
