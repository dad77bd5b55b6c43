package progress

import (
	"bytes"
	"testing"
)

func TestNew_DisabledForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	b := New(Options{Max: 3, Description: "Pulling", Writer: &buf})

	if b.Enabled() {
		t.Fatal("bar enabled for a non-terminal writer")
	}

	b.Step("nvim")
	b.Step("zshrc")
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := b.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("disabled bar wrote output: %q", buf.String())
	}
}

func TestNew_ExplicitlyDisabled(t *testing.T) {
	b := New(Options{Max: 1, Disabled: true})
	if b.Enabled() {
		t.Error("Disabled option ignored")
	}
}
