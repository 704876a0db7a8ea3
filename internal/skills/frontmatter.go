package skills

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatter is the YAML block every skill file opens with. Required keys
// are name and command; description, category, version, and author are
// optional.
type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Version     string `yaml:"version"`
	Author      string `yaml:"author"`
	Command     string `yaml:"command"`
}

// splitFrontmatter separates a skill file's leading `---`-delimited block
// from its markdown body. Per the recorded Open Question decision
// (DESIGN.md), only the fenced block is handed to the YAML parser; the
// body is treated as opaque text regardless of its contents, so a skill's
// knowledge prose never has to be valid YAML.
func splitFrontmatter(raw []byte) (meta frontmatter, body string, err error) {
	text := string(raw)
	lines := strings.Split(text, "\n")

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return frontmatter{}, "", fmt.Errorf("skills: file does not start with a --- frontmatter fence")
	}

	closeAt := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeAt = i
			break
		}
	}
	if closeAt == -1 {
		return frontmatter{}, "", fmt.Errorf("skills: unterminated frontmatter fence")
	}

	block := strings.Join(lines[1:closeAt], "\n")
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return frontmatter{}, "", fmt.Errorf("skills: parsing frontmatter: %w", err)
	}
	if meta.Name == "" {
		return frontmatter{}, "", fmt.Errorf("skills: frontmatter missing required field %q", "name")
	}
	if meta.Command == "" {
		return frontmatter{}, "", fmt.Errorf("skills: frontmatter missing required field %q", "command")
	}

	body = strings.TrimLeft(strings.Join(lines[closeAt+1:], "\n"), "\n")
	return meta, body, nil
}

// renderFrontmatter is splitFrontmatter's inverse, used by create/update so
// skills written back to disk round-trip through parse.
func renderFrontmatter(meta frontmatter, body string) ([]byte, error) {
	block, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("skills: rendering frontmatter: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(block)
	sb.WriteString("---\n")
	sb.WriteString(body)
	return []byte(sb.String()), nil
}
