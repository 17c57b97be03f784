package input

import (
	"fmt"
	"strings"
	"time"
)

// Key is a canonical physical key identifier, named the way the
// configuration file names keys (ControlLeft, Space, KeyA, F1, ...).
type Key string

const (
	ControlLeft  Key = "ControlLeft"
	ControlRight Key = "ControlRight"
	ShiftLeft    Key = "ShiftLeft"
	ShiftRight   Key = "ShiftRight"
	AltLeft      Key = "AltLeft"
	AltRight     Key = "AltRight"
	MetaLeft     Key = "MetaLeft"
	MetaRight    Key = "MetaRight"
	Space        Key = "Space"
	Enter        Key = "Enter"
	Escape       Key = "Escape"
	Tab          Key = "Tab"
	Backspace    Key = "Backspace"
	CapsLock     Key = "CapsLock"
)

// Edge is the direction of a key transition.
type Edge int

const (
	Down Edge = iota
	Up
)

func (e Edge) String() string {
	if e == Up {
		return "up"
	}
	return "down"
}

// Event is a single key state transition.
type Event struct {
	Key  Key
	Edge Edge
	Time time.Time
}

var canonical = map[string]Key{}

func init() {
	for _, k := range []Key{
		ControlLeft, ControlRight, ShiftLeft, ShiftRight, AltLeft, AltRight,
		MetaLeft, MetaRight, Space, Enter, Escape, Tab, Backspace, CapsLock,
	} {
		canonical[strings.ToLower(string(k))] = k
	}
	for c := 'A'; c <= 'Z'; c++ {
		k := Key("Key" + string(c))
		canonical[strings.ToLower(string(k))] = k
		canonical[strings.ToLower(string(c))] = k
	}
	for d := '0'; d <= '9'; d++ {
		k := Key("Digit" + string(d))
		canonical[strings.ToLower(string(k))] = k
		canonical[string(d)] = k
	}
	for i := 1; i <= 12; i++ {
		k := Key(fmt.Sprintf("F%d", i))
		canonical[strings.ToLower(string(k))] = k
	}

	aliases := map[string]Key{
		"ctrl":     ControlLeft,
		"control":  ControlLeft,
		"shift":    ShiftLeft,
		"alt":      AltLeft,
		"option":   AltLeft,
		"meta":     MetaLeft,
		"super":    MetaLeft,
		"cmd":      MetaLeft,
		"command":  MetaLeft,
		"win":      MetaLeft,
		"return":   Enter,
		"esc":      Escape,
		"spacebar": Space,
	}
	for name, k := range aliases {
		canonical[name] = k
	}
}

// ParseKey resolves a key name case-insensitively. Besides the canonical
// names it accepts single letters and digits and the usual modifier aliases.
func ParseKey(s string) (Key, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if k, ok := canonical[name]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown key: %q", s)
}

// Combo is a set of keys that must all be held together.
type Combo []Key

// ParseCombo parses key names into a Combo. Empty and duplicate keys are
// rejected.
func ParseCombo(names []string) (Combo, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("key combination is empty")
	}
	combo := make(Combo, 0, len(names))
	for _, n := range names {
		k, err := ParseKey(n)
		if err != nil {
			return nil, err
		}
		if combo.Contains(k) {
			return nil, fmt.Errorf("key %s listed twice", k)
		}
		combo = append(combo, k)
	}
	return combo, nil
}

// Contains reports whether k is part of the combination.
func (c Combo) Contains(k Key) bool {
	for _, ck := range c {
		if ck == k {
			return true
		}
	}
	return false
}

// Matches reports whether every key of the combination is in pressed.
// Held keys outside the combination are ignored.
func (c Combo) Matches(pressed map[Key]bool) bool {
	if len(c) == 0 {
		return false
	}
	for _, k := range c {
		if !pressed[k] {
			return false
		}
	}
	return true
}

func (c Combo) String() string {
	parts := make([]string, len(c))
	for i, k := range c {
		parts[i] = string(k)
	}
	return strings.Join(parts, "+")
}

// Strings returns the key names, as written to configuration files.
func (c Combo) Strings() []string {
	out := make([]string, len(c))
	for i, k := range c {
		out[i] = string(k)
	}
	return out
}
