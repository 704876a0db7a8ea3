package skills

import "testing"

func TestSplitFrontmatterParsesKnownFields(t *testing.T) {
	raw := []byte("---\nname: sign-in\ncommand: agent:log in\ndescription: logs into the portal\ncategory: auth\nversion: \"1\"\nauthor: ops\n---\n# Sign-in\n\nUse the SSO button.\n")
	meta, body, err := splitFrontmatter(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Name != "sign-in" || meta.Command != "agent:log in" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	if body != "# Sign-in\n\nUse the SSO button.\n" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestSplitFrontmatterRejectsMissingFence(t *testing.T) {
	if _, _, err := splitFrontmatter([]byte("name: x\ncommand: shell:echo hi\n")); err == nil {
		t.Fatal("expected error for file without leading fence")
	}
}

func TestSplitFrontmatterRejectsMissingRequiredFields(t *testing.T) {
	if _, _, err := splitFrontmatter([]byte("---\ndescription: no name or command\n---\nbody\n")); err == nil {
		t.Fatal("expected error for missing name/command")
	}
}

func TestRenderFrontmatterRoundTrips(t *testing.T) {
	meta := frontmatter{Name: "n", Command: "shell:echo hi", Description: "d"}
	raw, err := renderFrontmatter(meta, "body text\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, body, err := splitFrontmatter(raw)
	if err != nil {
		t.Fatalf("unexpected error re-parsing: %v", err)
	}
	if got.Name != meta.Name || got.Command != meta.Command || got.Description != meta.Description {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, meta)
	}
	if body != "body text\n" {
		t.Fatalf("unexpected body round trip: %q", body)
	}
}
