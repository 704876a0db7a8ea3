package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"lavis/internal/persistence"
)

func writeSkillFile(t *testing.T, root, id, name, command string) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "---\nname: " + name + "\ncommand: " + command + "\n---\nbody\n"
	if err := os.WriteFile(filepath.Join(dir, skillFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoaderReloadParsesValidSkillsAndSkipsBroken(t *testing.T) {
	root := t.TempDir()
	writeSkillFile(t, root, "good", "good-skill", "shell:echo hi")

	badDir := filepath.Join(root, "bad")
	if err := os.MkdirAll(badDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(badDir, skillFileName), []byte("not frontmatter at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	loader, err := NewLoader(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := loader.Reload(context.Background()); err != nil {
		t.Fatalf("reload should tolerate a broken file: %v", err)
	}

	if _, ok := loader.Get("bad"); ok {
		t.Fatal("malformed skill file must not be loaded")
	}
	got, ok := loader.Get("good")
	if !ok {
		t.Fatal("expected good skill to be loaded")
	}
	if got.Name != "good-skill" || got.Command != "shell:echo hi" {
		t.Fatalf("unexpected loaded skill: %+v", got)
	}
}

func TestLoaderWriteThenDelete(t *testing.T) {
	root := t.TempDir()
	loader, err := NewLoader(root)
	if err != nil {
		t.Fatal(err)
	}

	skill := persistence.Skill{ID: "new-skill", Name: "new", Command: "shell:echo new", Body: "knowledge"}
	if err := loader.Write(skill); err != nil {
		t.Fatal(err)
	}
	if _, ok := loader.Get("new-skill"); !ok {
		t.Fatal("expected skill visible immediately after Write")
	}
	if _, err := os.Stat(filepath.Join(root, "new-skill", skillFileName)); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	if err := loader.Delete("new-skill"); err != nil {
		t.Fatal(err)
	}
	if _, ok := loader.Get("new-skill"); ok {
		t.Fatal("expected skill gone after Delete")
	}
	if _, err := os.Stat(filepath.Join(root, "new-skill")); !os.IsNotExist(err) {
		t.Fatal("expected directory removed from disk")
	}
}
