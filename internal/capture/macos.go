package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"lavis/internal/tools/cli"
)

// MacOSPerceiver implements ScreenPerceiver by shelling out to
// /usr/sbin/screencapture, the same cli.Executor shell-spawn idiom
// MacOSActuator uses for every OS-control tool.
type MacOSPerceiver struct {
	exec    cli.Executor
	timeout time.Duration
	tmpDir  string
}

// NewMacOSPerceiver returns a perceiver that writes each capture to a
// temporary PNG under tmpDir (os.TempDir() if empty) and removes it
// immediately after reading the bytes back.
func NewMacOSPerceiver(exec cli.Executor, tmpDir string, timeout time.Duration) *MacOSPerceiver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &MacOSPerceiver{exec: exec, timeout: timeout, tmpDir: tmpDir}
}

// Capture runs `screencapture -x` (silent, no UI sound) to a scratch file,
// reads it back, and decodes its dimensions from the PNG header.
func (p *MacOSPerceiver) Capture(ctx context.Context) (Frame, error) {
	path := filepath.Join(p.tmpDir, fmt.Sprintf("lavis-capture-%s.png", uuid.NewString()))
	defer os.Remove(path)

	res, err := p.exec.Run(ctx, cli.Request{Shell: "/usr/sbin/screencapture -x " + shellQuote(path), Timeout: p.timeout})
	if err != nil {
		return Frame{}, fmt.Errorf("capture: screencapture: %w", err)
	}
	if !res.OK {
		return Frame{}, fmt.Errorf("capture: screencapture exited non-zero: %s", res.Stderr)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("capture: read screenshot: %w", err)
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("capture: decode png header: %w", err)
	}

	return Frame{Data: data, Width: cfg.Width, Height: cfg.Height}, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var _ ScreenPerceiver = (*MacOSPerceiver)(nil)
