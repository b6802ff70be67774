package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/park285/groupchess-bot/internal/domain"
)

func TestEmbeddedCoversErrorCodes(t *testing.T) {
	c := MustDefault()
	codes := []domain.Code{
		domain.CodeAlreadyActive, domain.CodeSelfChallenge, domain.CodeMissingTarget,
		domain.CodeNotAddressedToYou, domain.CodeStaleChallenge, domain.CodeNoActiveGame,
		domain.CodeNotYourTurn, domain.CodeIllegalMove, domain.CodeUnknownAction,
	}
	for _, code := range codes {
		if !c.Has("errors." + string(code)) {
			t.Errorf("missing text for errors.%s", code)
		}
	}
}

func TestRenderTemplate(t *testing.T) {
	c := MustDefault()
	got, err := c.Render("game.over.checkmate", map[string]string{"Winner": "@bob"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Game over: checkmate, @bob wins." {
		t.Fatalf("got %q", got)
	}
}

func TestRenderMissingData(t *testing.T) {
	c := MustDefault()
	if _, err := c.Render("game.over.checkmate", map[string]string{}); err == nil {
		t.Fatal("expected missing key error")
	}
	if got := c.Text("game.over.checkmate", map[string]string{}); got != "game.over.checkmate" {
		t.Fatalf("fallback = %q", got)
	}
	if _, err := c.Render("nope.nothing", nil); err == nil || !strings.Contains(err.Error(), "template not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("a.yaml", "errors:\n  ILLEGAL_MOVE: \"Nope.\"\n")
	write("ignored.txt", "errors: {ILLEGAL_MOVE: x}\n")

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("errors.ILLEGAL_MOVE", nil); got != "Nope." {
		t.Fatalf("override not applied: %q", got)
	}
	if got := c.Text("errors.NOT_YOUR_TURN", nil); got != "It is not your turn." {
		t.Fatalf("default lost: %q", got)
	}

	write("b.yml", "errors:\n  ILLEGAL_MOVE: \"Again.\"\n")
	if _, err := New(dir); err == nil || !strings.Contains(err.Error(), "duplicate override key") {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}

func TestRejectsNonStringLeaves(t *testing.T) {
	if _, err := parseYAMLToFlat([]byte("a:\n  b: 3\n")); err == nil {
		t.Fatal("expected error for int leaf")
	}
}
