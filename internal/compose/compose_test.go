package compose

import (
	"errors"
	"strings"
	"testing"

	logx "cibot/pkg/logx"
)

type failingExpander struct{}

func (failingExpander) Expand(string, Context) (string, error) {
	return "", errors.New("macro engine down")
}

func TestComposeExpandsMacrosAndEmoji(t *testing.T) {
	t.Parallel()
	c := New(MapExpander{}, logx.Nop())

	got := c.Compose("Build ${JOB_NAME} :success:", Context{"JOB_NAME": "deploy"})
	if !strings.Contains(got, "deploy") {
		t.Fatalf("macro not expanded: %q", got)
	}
	if !strings.Contains(got, "✅") || strings.Contains(got, ":success:") {
		t.Fatalf("emoji not substituted: %q", got)
	}
}

func TestComposeFallsBackOnExpansionFailure(t *testing.T) {
	t.Parallel()
	c := New(failingExpander{}, logx.Nop())

	got := c.Compose("Build :success: now", nil)
	if got != "Build ✅ now" {
		t.Fatalf("Compose = %q, want emoji applied to raw template", got)
	}
}

func TestComposeUnknownPlaceholderPassesThrough(t *testing.T) {
	t.Parallel()
	c := New(nil, logx.Nop())
	in := "keep :not_a_real_one: as-is"
	if got := c.Compose(in, nil); got != in {
		t.Fatalf("Compose(%q) = %q, want unchanged", in, got)
	}
}

func TestComposeIsPure(t *testing.T) {
	t.Parallel()
	c := New(MapExpander{}, logx.Nop())
	env := Context{"BUILD_NUMBER": "17"}
	a := c.Compose("#${BUILD_NUMBER} :tada:", env)
	b := c.Compose("#${BUILD_NUMBER} :tada:", env)
	if a != b {
		t.Fatalf("Compose not deterministic: %q vs %q", a, b)
	}
}

func TestMapExpanderUnknownMacroErrors(t *testing.T) {
	t.Parallel()
	_, err := MapExpander{}.Expand("x ${NOPE}", Context{})
	if err == nil {
		t.Fatal("expected error for unknown macro")
	}
}
