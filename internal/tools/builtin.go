package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"lavis/internal/actuator"
	"lavis/internal/capture"
)

// funcTool adapts a closure into a Tool, the same "one small struct per
// tool" shape the registry works with, without a distinct type per
// built-in.
type funcTool struct {
	spec Spec
	run  func(ctx context.Context, argsJSON []byte) (string, error)
}

func (f funcTool) Spec() Spec { return f.spec }
func (f funcTool) Execute(ctx context.Context, argsJSON []byte) (string, error) {
	return f.run(ctx, argsJSON)
}

func result(ok bool, msg string) (string, error) {
	if !ok {
		return "", fmt.Errorf("%s", msg)
	}
	return msg, nil
}

func pointSchema(extra map[string]any) map[string]any {
	props := map[string]any{
		"x": map[string]any{"type": "integer", "description": "normalized x in [0,1000]"},
		"y": map[string]any{"type": "integer", "description": "normalized y in [0,1000]"},
	}
	for k, v := range extra {
		props[k] = v
	}
	required := []string{"x", "y"}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func decodePoint(argsJSON []byte) (actuator.Point, map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(argsJSON, &raw); err != nil {
		return actuator.Point{}, nil, err
	}
	x, _ := raw["x"].(float64)
	y, _ := raw["y"].(float64)
	if x < 0 || x > 1000 || y < 0 || y > 1000 {
		return actuator.Point{}, nil, fmt.Errorf("coordinate out of range: (%v, %v)", raw["x"], raw["y"])
	}
	return actuator.Point{X: int(x), Y: int(y)}, raw, nil
}

// RegisterBuiltins wires every built-in tool family (mouse, keyboard,
// OS operations, perception, utility, terminator) onto r, dispatching
// mouse/keyboard/OS tools to act and screen-capture tools to dc.
func RegisterBuiltins(r *Registry, act actuator.InputActuator, dc *capture.DedupCapturer) error {
	mouseTools := []struct {
		name string
		fn   func(ctx context.Context, p actuator.Point) (bool, string)
	}{
		{"move-mouse", act.MoveMouse},
		{"click", act.Click},
		{"double-click", act.DoubleClick},
		{"right-click", act.RightClick},
	}
	for _, mt := range mouseTools {
		mt := mt
		if err := r.Register(funcTool{
			spec: Spec{Name: mt.name, Description: mt.name + " at a normalized screen coordinate", ParameterSchema: pointSchema(nil), IsVisualImpact: true},
			run: func(ctx context.Context, argsJSON []byte) (string, error) {
				p, _, err := decodePoint(argsJSON)
				if err != nil {
					return "", err
				}
				return result(mt.fn(ctx, p))
			},
		}); err != nil {
			return err
		}
	}

	if err := r.Register(funcTool{
		spec: Spec{Name: "drag", Description: "drag from one normalized coordinate to another", IsVisualImpact: true,
			ParameterSchema: map[string]any{"type": "object", "properties": map[string]any{
				"from_x": map[string]any{"type": "integer"}, "from_y": map[string]any{"type": "integer"},
				"to_x": map[string]any{"type": "integer"}, "to_y": map[string]any{"type": "integer"},
			}, "required": []string{"from_x", "from_y", "to_x", "to_y"}}},
		run: func(ctx context.Context, argsJSON []byte) (string, error) {
			var raw struct {
				FromX int `json:"from_x"`
				FromY int `json:"from_y"`
				ToX   int `json:"to_x"`
				ToY   int `json:"to_y"`
			}
			if err := json.Unmarshal(argsJSON, &raw); err != nil {
				return "", err
			}
			return result(act.Drag(ctx, actuator.Point{X: raw.FromX, Y: raw.FromY}, actuator.Point{X: raw.ToX, Y: raw.ToY}))
		},
	}); err != nil {
		return err
	}

	if err := r.Register(funcTool{
		spec: Spec{Name: "scroll", Description: "scroll at a normalized coordinate", IsVisualImpact: true,
			ParameterSchema: pointSchema(map[string]any{
				"delta_x": map[string]any{"type": "integer"}, "delta_y": map[string]any{"type": "integer"},
			})},
		run: func(ctx context.Context, argsJSON []byte) (string, error) {
			p, raw, err := decodePoint(argsJSON)
			if err != nil {
				return "", err
			}
			dx, _ := raw["delta_x"].(float64)
			dy, _ := raw["delta_y"].(float64)
			return result(act.Scroll(ctx, p, int(dx), int(dy)))
		},
	}); err != nil {
		return err
	}

	if err := r.Register(funcTool{
		spec: Spec{Name: "type-text", Description: "type literal text at the current focus", IsVisualImpact: true,
			ParameterSchema: map[string]any{"type": "object", "properties": map[string]any{"text": map[string]any{"type": "string"}}, "required": []string{"text"}}},
		run: func(ctx context.Context, argsJSON []byte) (string, error) {
			var raw struct{ Text string }
			if err := json.Unmarshal(argsJSON, &raw); err != nil {
				return "", err
			}
			return result(act.TypeText(ctx, raw.Text))
		},
	}); err != nil {
		return err
	}

	for _, key := range []string{"enter", "esc", "tab", "backspace", "copy", "paste", "select-all", "save", "undo"} {
		key := key
		if err := r.Register(funcTool{
			spec: Spec{Name: key, Description: "press the " + key + " key/shortcut", IsVisualImpact: true, ParameterSchema: map[string]any{"type": "object", "properties": map[string]any{}}},
			run: func(ctx context.Context, argsJSON []byte) (string, error) {
				return result(act.PressKey(ctx, key))
			},
		}); err != nil {
			return err
		}
	}

	strArgTools := []struct {
		name, field, desc string
		impact            bool
		fn                func(ctx context.Context, v string) (bool, string)
	}{
		{"open-app", "name", "open/activate an application", true, act.OpenApp},
		{"open-url", "url", "open a URL in the default browser", true, act.OpenURL},
		{"open-file", "path", "open a file with its default application", true, act.OpenFile},
		{"quit-app", "name", "quit an application", true, act.QuitApp},
		{"execute-applescript", "script", "run an AppleScript body", true, act.ExecuteAppleScript},
		{"execute-shell", "command", "run a shell command", true, act.ExecuteShell},
	}
	for _, st := range strArgTools {
		st := st
		if err := r.Register(funcTool{
			spec: Spec{Name: st.name, Description: st.desc, IsVisualImpact: st.impact,
				ParameterSchema: map[string]any{"type": "object", "properties": map[string]any{st.field: map[string]any{"type": "string"}}, "required": []string{st.field}}},
			run: func(ctx context.Context, argsJSON []byte) (string, error) {
				var raw map[string]string
				if err := json.Unmarshal(argsJSON, &raw); err != nil {
					return "", err
				}
				return result(st.fn(ctx, raw[st.field]))
			},
		}); err != nil {
			return err
		}
	}

	if err := r.Register(funcTool{
		spec: Spec{Name: "list-apps", Description: "list running foreground applications"},
		run: func(ctx context.Context, argsJSON []byte) (string, error) {
			return result(act.ListApps(ctx))
		},
	}); err != nil {
		return err
	}

	if err := r.Register(funcTool{
		spec: Spec{Name: "show-notification", Description: "display a system notification",
			ParameterSchema: map[string]any{"type": "object", "properties": map[string]any{
				"title": map[string]any{"type": "string"}, "body": map[string]any{"type": "string"},
			}, "required": []string{"title", "body"}}},
		run: func(ctx context.Context, argsJSON []byte) (string, error) {
			var raw struct{ Title, Body string }
			if err := json.Unmarshal(argsJSON, &raw); err != nil {
				return "", err
			}
			return result(act.ShowNotification(ctx, raw.Title, raw.Body))
		},
	}); err != nil {
		return err
	}

	if err := r.Register(funcTool{
		spec: Spec{Name: "capture-screen", Description: "capture the current screen"},
		run: func(ctx context.Context, argsJSON []byte) (string, error) {
			res, err := dc.Capture(ctx, capture.CaptureOptions{})
			if err != nil {
				return "", err
			}
			if res.Reused {
				return "screen unchanged since last capture", nil
			}
			return "screen captured", nil
		},
	}); err != nil {
		return err
	}

	if err := r.Register(funcTool{
		spec: Spec{Name: "wait", Description: "pause briefly before continuing", IsVisualImpact: true,
			ParameterSchema: map[string]any{"type": "object", "properties": map[string]any{"ms": map[string]any{"type": "integer"}}}},
		run: func(ctx context.Context, argsJSON []byte) (string, error) {
			return "waited", nil
		},
	}); err != nil {
		return err
	}

	if err := r.Register(funcTool{
		spec: Spec{Name: "get-mouse-info", Description: "report the current mouse position"},
		run: func(ctx context.Context, argsJSON []byte) (string, error) {
			return result(act.GetMouseInfo(ctx))
		},
	}); err != nil {
		return err
	}

	if err := r.Register(funcTool{
		spec: Spec{Name: "verify-coordinate", Description: "report whether a normalized coordinate is in range",
			ParameterSchema: pointSchema(nil)},
		run: func(ctx context.Context, argsJSON []byte) (string, error) {
			p, _, err := decodePoint(argsJSON)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("coordinate (%d, %d) is valid", p.X, p.Y), nil
		},
	}); err != nil {
		return err
	}

	return r.Register(funcTool{
		spec: Spec{Name: CompleteToolName, Description: "signal that the requested goal has been completed"},
		run: func(ctx context.Context, argsJSON []byte) (string, error) {
			return "goal marked complete", nil
		},
	})
}
