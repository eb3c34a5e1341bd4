package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderEmbeddedKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := c.Render("queue.added", map[string]any{"Index": 2, "Prompt": "songs about rain"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "#2") || !strings.Contains(out, "songs about rain") {
		t.Fatalf("unexpected render: %q", out)
	}
}

func TestRenderUnknownKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatal("expected error for unknown key")
	}
	// MustRender degrades to the key instead of dropping the message
	if got := c.MustRender("no.such.key", nil); got != "no.such.key" {
		t.Fatalf("MustRender fallback: %q", got)
	}
}

func TestRenderMissingDataKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("queue.added", map[string]any{"Index": 1}); err == nil {
		t.Fatal("missing template data must error, not render blank")
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	override := "queue:\n  added: \"custom {{.Prompt}}\"\n"
	if err := os.WriteFile(filepath.Join(dir, "10-custom.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New with overrides: %v", err)
	}
	out, err := c.Render("queue.added", map[string]any{"Prompt": "x"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "custom x" {
		t.Fatalf("override not applied: %q", out)
	}
	// untouched keys keep their embedded defaults
	if _, err := c.Render("join.joined", nil); err != nil {
		t.Fatalf("default key lost: %v", err)
	}
}

func TestOverrideDuplicateKeyRejected(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("join:\n  joined: \"hi\"\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatal("duplicate override keys across files must be rejected")
	}
}
