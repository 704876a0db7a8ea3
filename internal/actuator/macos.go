package actuator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lavis/internal/tools/cli"
)

// MacOSActuator implements InputActuator via osascript/System Events and
// /bin/sh, the same shell-spawn idiom internal/tools/cli already uses for
// execute-shell.
type MacOSActuator struct {
	exec    cli.Executor
	timeout time.Duration

	screenWidth  int
	screenHeight int
}

// NewMacOSActuator returns an actuator that maps normalized [0,1000]
// coordinates onto a screenWidth x screenHeight display.
func NewMacOSActuator(exec cli.Executor, screenWidth, screenHeight int, timeout time.Duration) *MacOSActuator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MacOSActuator{exec: exec, timeout: timeout, screenWidth: screenWidth, screenHeight: screenHeight}
}

func (a *MacOSActuator) toScreen(p Point) (int, int) {
	x := p.X * a.screenWidth / 1000
	y := p.Y * a.screenHeight / 1000
	return x, y
}

func (a *MacOSActuator) script(ctx context.Context, script string) (bool, string) {
	res, err := a.exec.RunAppleScript(ctx, script, a.timeout)
	if err != nil {
		return false, fmt.Sprintf("❌ applescript failed: %v", err)
	}
	if !res.OK {
		return false, fmt.Sprintf("❌ applescript exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return true, strings.TrimSpace(res.Stdout)
}

func (a *MacOSActuator) MoveMouse(ctx context.Context, p Point) (bool, string) {
	x, y := a.toScreen(p)
	ok, msg := a.script(ctx, fmt.Sprintf(`tell application "System Events" to set mouse location to {%d, %d}`, x, y))
	if !ok {
		return false, msg
	}
	return true, fmt.Sprintf("moved mouse to (%d, %d)", x, y)
}

func (a *MacOSActuator) Click(ctx context.Context, p Point) (bool, string) {
	x, y := a.toScreen(p)
	ok, msg := a.script(ctx, fmt.Sprintf(`tell application "System Events" to click at {%d, %d}`, x, y))
	if !ok {
		return false, msg
	}
	return true, fmt.Sprintf("clicked at (%d, %d)", x, y)
}

func (a *MacOSActuator) DoubleClick(ctx context.Context, p Point) (bool, string) {
	x, y := a.toScreen(p)
	ok, msg := a.script(ctx, fmt.Sprintf(`tell application "System Events" to double click at {%d, %d}`, x, y))
	if !ok {
		return false, msg
	}
	return true, fmt.Sprintf("double-clicked at (%d, %d)", x, y)
}

func (a *MacOSActuator) RightClick(ctx context.Context, p Point) (bool, string) {
	x, y := a.toScreen(p)
	ok, msg := a.script(ctx, fmt.Sprintf(`tell application "System Events" to right click at {%d, %d}`, x, y))
	if !ok {
		return false, msg
	}
	return true, fmt.Sprintf("right-clicked at (%d, %d)", x, y)
}

func (a *MacOSActuator) Drag(ctx context.Context, from, to Point) (bool, string) {
	fx, fy := a.toScreen(from)
	tx, ty := a.toScreen(to)
	script := fmt.Sprintf(`tell application "System Events"
		set mouse location to {%d, %d}
		mouse down
		set mouse location to {%d, %d}
		mouse up
	end tell`, fx, fy, tx, ty)
	ok, msg := a.script(ctx, script)
	if !ok {
		return false, msg
	}
	return true, fmt.Sprintf("dragged (%d, %d) -> (%d, %d)", fx, fy, tx, ty)
}

func (a *MacOSActuator) Scroll(ctx context.Context, p Point, deltaX, deltaY int) (bool, string) {
	x, y := a.toScreen(p)
	ok, msg := a.script(ctx, fmt.Sprintf(`tell application "System Events"
		set mouse location to {%d, %d}
		scroll %d
	end tell`, x, y, deltaY))
	if !ok {
		return false, msg
	}
	return true, fmt.Sprintf("scrolled (%d, %d) at (%d, %d)", deltaX, deltaY, x, y)
}

func (a *MacOSActuator) TypeText(ctx context.Context, text string) (bool, string) {
	escaped := strings.ReplaceAll(text, `"`, `\"`)
	ok, msg := a.script(ctx, fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped))
	if !ok {
		return false, msg
	}
	return true, fmt.Sprintf("typed %d characters", len(text))
}

var keyNames = map[string]string{
	"enter":      "return",
	"esc":        "escape",
	"tab":        "tab",
	"backspace":  "delete",
	"copy":       "c",
	"paste":      "v",
	"select-all": "a",
	"save":       "s",
	"undo":       "z",
}

var modifierKeys = map[string]string{"copy": "command down", "paste": "command down", "select-all": "command down", "save": "command down", "undo": "command down"}

var keyCodes = map[string]int{"escape": 53, "delete": 51}

func (a *MacOSActuator) PressKey(ctx context.Context, key string) (bool, string) {
	name, known := keyNames[key]
	if !known {
		return false, fmt.Sprintf("❌ unknown key: %q", key)
	}

	var script string
	switch {
	case modifierKeys[key] != "":
		script = fmt.Sprintf(`tell application "System Events" to keystroke "%s" using {%s}`, name, modifierKeys[key])
	case name == "return":
		script = `tell application "System Events" to keystroke return`
	case name == "tab":
		script = `tell application "System Events" to keystroke tab`
	default:
		if code, ok := keyCodes[name]; ok {
			script = fmt.Sprintf(`tell application "System Events" to key code %d`, code)
		} else {
			script = fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, name)
		}
	}

	ok, msg := a.script(ctx, script)
	if !ok {
		return false, msg
	}
	return true, fmt.Sprintf("pressed %s", key)
}

func (a *MacOSActuator) OpenApp(ctx context.Context, name string) (bool, string) {
	ok, msg := a.script(ctx, fmt.Sprintf(`tell application "%s" to activate`, name))
	if !ok {
		return false, msg
	}
	return true, fmt.Sprintf("opened %s", name)
}

func (a *MacOSActuator) OpenURL(ctx context.Context, url string) (bool, string) {
	res, err := a.exec.Run(ctx, cliRequest("open "+shellQuote(url), a.timeout))
	if err != nil || !res.OK {
		return false, fmt.Sprintf("❌ failed to open url %q", url)
	}
	return true, fmt.Sprintf("opened %s", url)
}

func (a *MacOSActuator) OpenFile(ctx context.Context, path string) (bool, string) {
	res, err := a.exec.Run(ctx, cliRequest("open "+shellQuote(path), a.timeout))
	if err != nil || !res.OK {
		return false, fmt.Sprintf("❌ failed to open file %q", path)
	}
	return true, fmt.Sprintf("opened %s", path)
}

func (a *MacOSActuator) QuitApp(ctx context.Context, name string) (bool, string) {
	ok, msg := a.script(ctx, fmt.Sprintf(`tell application "%s" to quit`, name))
	if !ok {
		return false, msg
	}
	return true, fmt.Sprintf("quit %s", name)
}

func (a *MacOSActuator) ListApps(ctx context.Context) (bool, string) {
	ok, msg := a.script(ctx, `tell application "System Events" to get name of every process whose background only is false`)
	if !ok {
		return false, msg
	}
	return true, msg
}

func (a *MacOSActuator) ShowNotification(ctx context.Context, title, body string) (bool, string) {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, strings.ReplaceAll(body, `"`, `\"`), strings.ReplaceAll(title, `"`, `\"`))
	ok, msg := a.script(ctx, script)
	if !ok {
		return false, msg
	}
	return true, "notification shown"
}

func (a *MacOSActuator) ExecuteAppleScript(ctx context.Context, script string) (bool, string) {
	return a.script(ctx, script)
}

func (a *MacOSActuator) ExecuteShell(ctx context.Context, command string) (bool, string) {
	res, err := a.exec.Run(ctx, cliRequest(command, a.timeout))
	if err != nil {
		return false, fmt.Sprintf("❌ shell execution failed: %v", err)
	}
	if !res.OK {
		return false, fmt.Sprintf("❌ exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return true, strings.TrimSpace(res.Stdout)
}

func (a *MacOSActuator) GetMouseInfo(ctx context.Context) (bool, string) {
	ok, msg := a.script(ctx, `tell application "System Events" to get the mouse location`)
	if !ok {
		return false, msg
	}
	return true, msg
}

func cliRequest(shell string, timeout time.Duration) cli.Request {
	return cli.Request{Shell: shell, Timeout: timeout}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var _ InputActuator = (*MacOSActuator)(nil)
