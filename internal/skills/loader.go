// Package skills implements SkillLoader and SkillService: on-disk skill
// definitions, hot-reloaded into an in-memory set, exposed as executable
// tools that inject their knowledge body into exactly one subsequent
// reasoning invocation.
package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"lavis/internal/persistence"
)

const skillFileName = "SKILL.md"

// Loader parses every `<dir>/<id>/SKILL.md` file under root into a
// persistence.Skill and keeps the set fresh via periodic reload.
type Loader struct {
	root string

	mu     sync.RWMutex
	skills map[string]persistence.Skill // keyed by id (directory name)
}

// NewLoader returns a Loader rooted at dir. dir is created if missing.
func NewLoader(dir string) (*Loader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("skills: creating root %s: %w", dir, err)
	}
	return &Loader{root: dir, skills: make(map[string]persistence.Skill)}, nil
}

// Reload re-walks root and rebuilds the in-memory skill set. A single
// malformed file is logged and skipped rather than failing the whole reload.
func (l *Loader) Reload(ctx context.Context) error {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return fmt.Errorf("skills: reading root %s: %w", l.root, err)
	}

	next := make(map[string]persistence.Skill, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := e.Name()
		path := filepath.Join(l.root, id, skillFileName)
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Err(err).Str("skill_id", id).Msg("skills: reading skill file")
			}
			continue
		}
		meta, body, err := splitFrontmatter(raw)
		if err != nil {
			log.Warn().Err(err).Str("skill_id", id).Msg("skills: parsing skill file")
			continue
		}
		next[id] = persistence.Skill{
			ID:            id,
			Name:          meta.Name,
			Description:   meta.Description,
			Category:      meta.Category,
			Version:       meta.Version,
			Author:        meta.Author,
			Body:          body,
			Command:       meta.Command,
			Enabled:       true,
			InstallSource: path,
		}
	}

	l.mu.Lock()
	l.skills = next
	l.mu.Unlock()
	return nil
}

// List returns every loaded skill, unordered.
func (l *Loader) List() []persistence.Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]persistence.Skill, 0, len(l.skills))
	for _, s := range l.skills {
		out = append(out, s)
	}
	return out
}

// Get returns the loaded skill with the given id.
func (l *Loader) Get(id string) (persistence.Skill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.skills[id]
	return s, ok
}

// Write serializes skill to `<root>/<id>/SKILL.md`, creating or
// overwriting it, then performs a targeted in-memory update (callers
// still trigger/receive a full Reload on the regular hot-reload cadence).
// Like Reload, it marks the in-memory skill enabled.
func (l *Loader) Write(skill persistence.Skill) error {
	meta := frontmatter{
		Name:        skill.Name,
		Description: skill.Description,
		Category:    skill.Category,
		Version:     skill.Version,
		Author:      skill.Author,
		Command:     skill.Command,
	}
	raw, err := renderFrontmatter(meta, skill.Body)
	if err != nil {
		return err
	}
	dir := filepath.Join(l.root, skill.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("skills: creating skill dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, skillFileName)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("skills: writing %s: %w", path, err)
	}
	skill.InstallSource = path
	skill.Enabled = true

	l.mu.Lock()
	l.skills[skill.ID] = skill
	l.mu.Unlock()
	return nil
}

// Delete removes a skill's on-disk directory and its in-memory entry.
func (l *Loader) Delete(id string) error {
	dir := filepath.Join(l.root, id)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("skills: removing %s: %w", dir, err)
	}
	l.mu.Lock()
	delete(l.skills, id)
	l.mu.Unlock()
	return nil
}

// WatchReload runs Reload immediately and then on every tick of interval
// until ctx is canceled.
func (l *Loader) WatchReload(ctx context.Context, interval time.Duration) {
	if err := l.Reload(ctx); err != nil {
		log.Warn().Err(err).Msg("skills: initial reload")
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Reload(ctx); err != nil {
				log.Warn().Err(err).Msg("skills: periodic reload")
			}
		}
	}
}
