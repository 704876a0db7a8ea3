package command

import "testing"

func TestParseAgentPrefix(t *testing.T) {
	kind, payload := Parse("agent:refresh inbox")
	if kind != Agent || payload != "refresh inbox" {
		t.Fatalf("unexpected parse: %v %q", kind, payload)
	}
}

func TestParseShellPrefix(t *testing.T) {
	kind, payload := Parse("shell:echo hi")
	if kind != Shell || payload != "echo hi" {
		t.Fatalf("unexpected parse: %v %q", kind, payload)
	}
}

func TestParseBareDefaultsToShell(t *testing.T) {
	kind, payload := Parse("echo hi")
	if kind != Shell || payload != "echo hi" {
		t.Fatalf("unexpected parse: %v %q", kind, payload)
	}
}
