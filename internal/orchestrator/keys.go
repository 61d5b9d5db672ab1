package orchestrator

import (
	"fmt"
	"strings"

	"github.com/use-agent/browser-stream/internal/browsererr"
)

// keySpec is the {key, code, keyCode} triple Input.dispatchKeyEvent needs.
type keySpec struct {
	Key     string
	Code    string
	KeyCode int
}

var namedKeys = map[string]keySpec{
	"enter":     {"Enter", "Enter", 13},
	"escape":    {"Escape", "Escape", 27},
	"tab":       {"Tab", "Tab", 9},
	"backspace": {"Backspace", "Backspace", 8},
	"arrowup":   {"ArrowUp", "ArrowUp", 38},
	"arrowdown": {"ArrowDown", "ArrowDown", 40},
	"arrowleft": {"ArrowLeft", "ArrowLeft", 37},
	"arrowright": {"ArrowRight", "ArrowRight", 39},
	"space":     {" ", "Space", 32},
	" ":         {" ", "Space", 32},
}

const (
	modAlt   = 1
	modCtrl  = 1 << 1
	modMeta  = 1 << 2
	modShift = 1 << 3
)

// pressKeyInput is the parsed result of "Key[+Mods]*".
type pressKeyInput struct {
	Spec      keySpec
	Modifiers int
}

// parsePressKey parses the press_key input grammar:
// modifier tokens control|ctrl|shift|alt|meta|command|cmd may precede the
// last token, which is the primary key.
func parsePressKey(input string) (pressKeyInput, error) {
	tokens := strings.Split(input, "+")
	if len(tokens) == 0 || tokens[len(tokens)-1] == "" {
		return pressKeyInput{}, browsererr.New(browsererr.CodeActionFailed, "empty key", nil)
	}

	primary := tokens[len(tokens)-1]
	var modifiers int
	for _, tok := range tokens[:len(tokens)-1] {
		switch strings.ToLower(tok) {
		case "control", "ctrl":
			modifiers |= modCtrl
		case "shift":
			modifiers |= modShift
		case "alt":
			modifiers |= modAlt
		case "meta", "command", "cmd":
			modifiers |= modMeta
		default:
			return pressKeyInput{}, browsererr.New(browsererr.CodeActionFailed, "unknown modifier: "+tok, nil)
		}
	}

	spec, err := resolveKeySpec(primary)
	if err != nil {
		return pressKeyInput{}, err
	}

	return pressKeyInput{Spec: spec, Modifiers: modifiers}, nil
}

func resolveKeySpec(primary string) (keySpec, error) {
	if spec, ok := namedKeys[strings.ToLower(primary)]; ok {
		return spec, nil
	}

	if len(primary) != 1 {
		return keySpec{}, browsererr.New(browsererr.CodeActionFailed, "unknown key: "+primary, nil)
	}

	c := primary[0]
	switch {
	case c >= '0' && c <= '9':
		return keySpec{Key: primary, Code: fmt.Sprintf("Digit%c", c), KeyCode: int(c)}, nil
	default:
		upper := strings.ToUpper(primary)
		return keySpec{Key: primary, Code: "Key" + upper, KeyCode: int(upper[0])}, nil
	}
}

// isSinglePrintable reports whether key is exactly one printable
// character, the condition under which press_key also dispatches a
// "char" event.
func isSinglePrintable(key string) bool {
	return len(key) == 1 && key[0] >= 0x20 && key[0] < 0x7f
}
