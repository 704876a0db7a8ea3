// Package actuator defines InputActuator: one function per built-in
// OS-control tool, each returning (success, humanMessage). Coords arrive
// normalized to [0,1000]x[0,1000] (model space); each implementation maps
// them to screen space itself inside its mouse/drag/scroll methods.
package actuator

import "context"

// Point is a normalized [0,1000]x[0,1000] coordinate pair, as emitted by
// the chat model for mouse operations.
type Point struct {
	X, Y int
}

// InputActuator performs OS-level input/window operations. Every method
// returns a human-readable result message alongside success, favoring
// narratable tool results over opaque booleans.
type InputActuator interface {
	// Mouse
	MoveMouse(ctx context.Context, p Point) (bool, string)
	Click(ctx context.Context, p Point) (bool, string)
	DoubleClick(ctx context.Context, p Point) (bool, string)
	RightClick(ctx context.Context, p Point) (bool, string)
	Drag(ctx context.Context, from, to Point) (bool, string)
	Scroll(ctx context.Context, p Point, deltaX, deltaY int) (bool, string)

	// Keyboard
	TypeText(ctx context.Context, text string) (bool, string)
	PressKey(ctx context.Context, key string) (bool, string) // enter/esc/tab/backspace/copy/paste/select-all/save/undo

	// OS operations
	OpenApp(ctx context.Context, name string) (bool, string)
	OpenURL(ctx context.Context, url string) (bool, string)
	OpenFile(ctx context.Context, path string) (bool, string)
	QuitApp(ctx context.Context, name string) (bool, string)
	ListApps(ctx context.Context) (bool, string)
	ShowNotification(ctx context.Context, title, body string) (bool, string)
	ExecuteAppleScript(ctx context.Context, script string) (bool, string)
	ExecuteShell(ctx context.Context, command string) (bool, string)

	// Utility
	GetMouseInfo(ctx context.Context) (bool, string)
}
