// Package input implements the Input Dispatcher (§4.F): pure
// translations from a high-level, UID-addressed action (click, type,
// hotkey, drag, scroll) into one or more low-level CDP Input domain
// commands on the correct session. No state is kept between calls; every
// primitive here takes the cdp.Executor (main connection or sub-target
// session) to issue against and returns once the protocol round-trip
// completes.
//
// Grounded on cdproto/input's typed commands and k6's
// common/keyboard_test.go combo-parsing/modifier-bit expectations
// (common/keyboard_test.go's TestSplit, TestKeyboardPress); k6's
// own keyboard.go/mouse.go implementation files did not survive retrieval,
// so the key table and dispatch sequence below are written fresh to the
// same observable contract the tests pin down.
package input

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
)

// Modifier bit values per §4.E "Keyboard model".
const (
	ModAlt     = 1
	ModControl = 2
	ModMeta    = 4
	ModShift   = 8
)

// keyDef is one entry of the fixed named-key table (§4.E: "A fixed
// table maps named keys to {virtual keycode, code, key}").
type keyDef struct {
	VirtualKeyCode int64
	Code           string
	Key            string
	Text           string // printable text this key produces unmodified, if any
}

// modifierBits maps a modifier key name to its §4.E bit contribution.
var modifierBits = map[string]int64{
	"Alt":     ModAlt,
	"Control": ModControl,
	"Ctrl":    ModControl,
	"Meta":    ModMeta,
	"Cmd":     ModMeta,
	"Command": ModMeta,
	"Shift":   ModShift,
}

// isModifier reports whether name names a modifier key rather than a main
// key.
func isModifier(name string) bool {
	_, ok := modifierBits[name]
	return ok
}

// keyTable is the fixed named-key → {virtual keycode, code, key} mapping.
// It covers the common editing/navigation keys plus the full US-layout
// printable alphabet/digits/punctuation; anything outside this table is
// treated as literal text via Type/InsertText rather than Press.
var keyTable = buildKeyTable()

func buildKeyTable() map[string]keyDef {
	t := map[string]keyDef{
		"Backspace":   {8, "Backspace", "Backspace", ""},
		"Tab":         {9, "Tab", "Tab", "\t"},
		"Enter":       {13, "Enter", "Enter", "\r"},
		"Shift":       {16, "ShiftLeft", "Shift", ""},
		"Control":     {17, "ControlLeft", "Control", ""},
		"Alt":         {18, "AltLeft", "Alt", ""},
		"Meta":        {91, "MetaLeft", "Meta", ""},
		"Escape":      {27, "Escape", "Escape", ""},
		"Space":       {32, "Space", " ", " "},
		"PageUp":      {33, "PageUp", "PageUp", ""},
		"PageDown":    {34, "PageDown", "PageDown", ""},
		"End":         {35, "End", "End", ""},
		"Home":        {36, "Home", "Home", ""},
		"ArrowLeft":   {37, "ArrowLeft", "ArrowLeft", ""},
		"ArrowUp":     {38, "ArrowUp", "ArrowUp", ""},
		"ArrowRight":  {39, "ArrowRight", "ArrowRight", ""},
		"ArrowDown":   {40, "ArrowDown", "ArrowDown", ""},
		"Insert":      {45, "Insert", "Insert", ""},
		"Delete":      {46, "Delete", "Delete", ""},
		"F1":          {112, "F1", "F1", ""},
		"F2":          {113, "F2", "F2", ""},
		"F3":          {114, "F3", "F3", ""},
		"F4":          {115, "F4", "F4", ""},
		"F5":          {116, "F5", "F5", ""},
		"F6":          {117, "F6", "F6", ""},
		"F7":          {118, "F7", "F7", ""},
		"F8":          {119, "F8", "F8", ""},
		"F9":          {120, "F9", "F9", ""},
		"F10":         {121, "F10", "F10", ""},
		"F11":         {122, "F11", "F11", ""},
		"F12":         {123, "F12", "F12", ""},
	}

	for i, ch := range "0123456789" {
		t[string(ch)] = keyDef{int64(48 + i), "Digit" + string(ch), string(ch), string(ch)}
	}
	for i, ch := range "abcdefghijklmnopqrstuvwxyz" {
		upper := strings.ToUpper(string(ch))
		t[upper] = keyDef{int64(65 + i), "Key" + upper, upper, upper}
		t["Key"+upper] = t[upper]
		t[string(ch)] = keyDef{int64(65 + i), "Key" + upper, string(ch), string(ch)}
	}
	for ch, code := range map[string]int64{
		";": 186, "=": 187, ",": 188, "-": 189, ".": 190, "/": 191,
		"`": 192, "[": 219, "\\": 220, "]": 221, "'": 222,
	} {
		t[ch] = keyDef{code, "", ch, ch}
	}

	return t
}

// Combo is a parsed key combination (§4.E "Combo dispatch").
type Combo struct {
	Modifiers []string
	Main      string
}

// ParseCombo splits a string like "Control+Shift+P" on "+" (the last token
// is the main key; every earlier token is a modifier name), mirroring the
// k6's split() helper pinned down by common/keyboard_test.go's
// TestSplit (do not split on a bare "+", and "++"/"+++" split to ["+", ""]
// / ["+", "+"]).
func ParseCombo(keys string) Combo {
	parts := split(keys)
	if len(parts) == 0 {
		return Combo{Main: keys}
	}
	main := parts[len(parts)-1]
	mods := parts[:len(parts)-1]
	return Combo{Modifiers: mods, Main: main}
}

// split implements k6's TestSplit semantics exactly: split on "+" but
// never let a bare "+" disappear, since "+" is itself a valid key name. A
// doubled "++" is the literal "+" key followed by its own separator; a
// trailing lone "+" is the literal "+" key with nothing after it.
func split(keys string) []string {
	if keys == "" {
		return []string{""}
	}
	if keys == "+" {
		return []string{"+"}
	}
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(keys); {
		if keys[i] == '+' {
			if i+1 < len(keys) && keys[i+1] == '+' {
				cur.WriteByte('+')
				parts = append(parts, cur.String())
				cur.Reset()
				i += 2
				continue
			}
			if i == len(keys)-1 {
				cur.WriteByte('+')
				i++
				continue
			}
			parts = append(parts, cur.String())
			cur.Reset()
			i++
			continue
		}
		cur.WriteByte(keys[i])
		i++
	}
	parts = append(parts, cur.String())
	return parts
}

func modifierMask(names []string) int64 {
	var mask int64
	for _, n := range names {
		mask |= modifierBits[n]
	}
	return mask
}

func lookupKey(name string) (keyDef, error) {
	if d, ok := keyTable[name]; ok {
		return d, nil
	}
	if len(name) == 1 {
		return keyDef{Code: "", Key: name, Text: name}, nil
	}
	return keyDef{}, fmt.Errorf("input: unknown key %q", name)
}

// KeyDown dispatches a single keyDown event for name with the
// given accumulated modifier bitmask.
func KeyDown(ctx context.Context, exec cdp.Executor, name string, modifiers int64) error {
	d, err := lookupKey(name)
	if err != nil {
		return err
	}
	typ := input.KeyDown
	if d.Text != "" && d.Code == "" {
		typ = input.KeyDown
	}
	ev := input.DispatchKeyEvent(typ).
		WithModifiers(input.Modifier(modifiers)).
		WithWindowsVirtualKeyCode(d.VirtualKeyCode).
		WithNativeVirtualKeyCode(d.VirtualKeyCode).
		WithCode(d.Code).
		WithKey(d.Key)
	if d.Text != "" {
		ev = ev.WithText(d.Text).WithUnmodifiedText(d.Text)
	}
	return ev.Do(cdp.WithExecutor(ctx, exec))
}

// KeyUp dispatches the matching keyUp event.
func KeyUp(ctx context.Context, exec cdp.Executor, name string, modifiers int64) error {
	d, err := lookupKey(name)
	if err != nil {
		return err
	}
	ev := input.DispatchKeyEvent(input.KeyUp).
		WithModifiers(input.Modifier(modifiers)).
		WithWindowsVirtualKeyCode(d.VirtualKeyCode).
		WithNativeVirtualKeyCode(d.VirtualKeyCode).
		WithCode(d.Code).
		WithKey(d.Key)
	return ev.Do(cdp.WithExecutor(ctx, exec))
}

// pressChar dispatches the full keyDown(+char)/keyUp pair CDP expects for a
// single printable character, mirroring k6's Keyboard.Press shape.
func pressChar(ctx context.Context, exec cdp.Executor, name string, modifiers int64) error {
	d, err := lookupKey(name)
	if err != nil {
		return err
	}

	down := input.DispatchKeyEvent(input.KeyDown).
		WithModifiers(input.Modifier(modifiers)).
		WithWindowsVirtualKeyCode(d.VirtualKeyCode).
		WithNativeVirtualKeyCode(d.VirtualKeyCode).
		WithCode(d.Code).
		WithKey(d.Key)
	if d.Text != "" {
		down = down.WithText(d.Text).WithUnmodifiedText(d.Text)
	}
	if err := down.Do(cdp.WithExecutor(ctx, exec)); err != nil {
		return fmt.Errorf("input: key down %q: %w", name, err)
	}

	up := input.DispatchKeyEvent(input.KeyUp).
		WithModifiers(input.Modifier(modifiers)).
		WithWindowsVirtualKeyCode(d.VirtualKeyCode).
		WithNativeVirtualKeyCode(d.VirtualKeyCode).
		WithCode(d.Code).
		WithKey(d.Key)
	if err := up.Do(cdp.WithExecutor(ctx, exec)); err != nil {
		return fmt.Errorf("input: key up %q: %w", name, err)
	}
	return nil
}

// Press dispatches a combo: modifiers down in forward order, the main key
// with accumulated bits, then modifiers up in reverse order (§4.E
// "Combo dispatch").
func Press(ctx context.Context, exec cdp.Executor, combo string) error {
	c := ParseCombo(combo)
	mask := modifierMask(c.Modifiers)

	for _, m := range c.Modifiers {
		if err := KeyDown(ctx, exec, m, mask); err != nil {
			return err
		}
	}

	err := pressChar(ctx, exec, c.Main, mask)

	for i := len(c.Modifiers) - 1; i >= 0; i-- {
		if upErr := KeyUp(ctx, exec, c.Modifiers[i], mask); upErr != nil && err == nil {
			err = upErr
		}
	}
	return err
}

// Type inserts text character by character via InsertText, without treating "+"
// as a combo separator; used by the fill/type helpers that must not treat
// "+" specially.
func Type(ctx context.Context, exec cdp.Executor, text string) error {
	for _, r := range text {
		if err := InsertText(ctx, exec, string(r)); err != nil {
			return err
		}
	}
	return nil
}

// InsertText dispatches Input.insertText directly, bypassing key-event
// synthesis entirely; used for literal text insertion that must not be
// reinterpreted as key combos.
func InsertText(ctx context.Context, exec cdp.Executor, text string) error {
	return input.InsertText(text).Do(cdp.WithExecutor(ctx, exec))
}
