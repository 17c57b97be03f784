package stt

import "strings"

// Prompt is the initial context given to the engine. The set is closed:
// NoPrompt, Vocabulary and RawPrompt.
type Prompt interface {
	// Resolve returns the prompt text and whether there is one.
	Resolve() (string, bool)
	isPrompt()
}

// NoPrompt sends no initial context.
type NoPrompt struct{}

// Vocabulary primes the engine with words it should expect.
type Vocabulary struct {
	Words []string
}

// RawPrompt is sent unchanged.
type RawPrompt struct {
	Text string
}

// VocabularySeparator joins vocabulary words.
const VocabularySeparator = ", "

func (NoPrompt) Resolve() (string, bool) { return "", false }

func (v Vocabulary) Resolve() (string, bool) {
	words := make([]string, 0, len(v.Words))
	for _, w := range v.Words {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return "", false
	}
	return strings.Join(words, VocabularySeparator), true
}

func (r RawPrompt) Resolve() (string, bool) {
	if r.Text == "" {
		return "", false
	}
	return r.Text, true
}

func (NoPrompt) isPrompt()   {}
func (Vocabulary) isPrompt() {}
func (RawPrompt) isPrompt()  {}

// ResolvePrompt resolves p, treating nil as NoPrompt.
func ResolvePrompt(p Prompt) string {
	if p == nil {
		return ""
	}
	text, _ := p.Resolve()
	return text
}
