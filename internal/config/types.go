package config

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/emmett/whispering/internal/postprocess"
	"github.com/emmett/whispering/internal/stt"
)

// TriggerConfig is the tagged activation mode. The VAD fields only apply to
// toggle_vad and are filled with defaults when omitted.
type TriggerConfig struct {
	Type              string
	Threshold         float64
	SpeechDuration    float64
	SilenceDuration   float64
	PreBufferDuration float64
}

// DefaultToggleVAD returns toggle_vad with the default hysteresis
func DefaultToggleVAD() TriggerConfig {
	return TriggerConfig{
		Type:              TriggerToggleVAD,
		Threshold:         0.5,
		SpeechDuration:    1.0,
		SilenceDuration:   2.0,
		PreBufferDuration: 1.0,
	}
}

type triggerVADFields struct {
	Type              string  `yaml:"type"`
	Threshold         float64 `yaml:"threshold"`
	SpeechDuration    float64 `yaml:"speech_duration"`
	SilenceDuration   float64 `yaml:"silence_duration"`
	PreBufferDuration float64 `yaml:"pre_buffer_duration"`
}

// UnmarshalYAML accepts either a bare type name or a mapping with a type key
func (t *TriggerConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*t = TriggerConfig{Type: node.Value}
		if t.Type == TriggerToggleVAD {
			*t = DefaultToggleVAD()
		}
		return nil
	}

	var raw struct {
		Type              string   `yaml:"type"`
		Threshold         *float64 `yaml:"threshold"`
		SpeechDuration    *float64 `yaml:"speech_duration"`
		SilenceDuration   *float64 `yaml:"silence_duration"`
		PreBufferDuration *float64 `yaml:"pre_buffer_duration"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.Type != TriggerToggleVAD {
		if raw.Threshold != nil || raw.SpeechDuration != nil || raw.SilenceDuration != nil || raw.PreBufferDuration != nil {
			return fmt.Errorf("line %d: VAD settings are only valid for %s", node.Line, TriggerToggleVAD)
		}
		*t = TriggerConfig{Type: raw.Type}
		return nil
	}

	*t = DefaultToggleVAD()
	if raw.Threshold != nil {
		t.Threshold = *raw.Threshold
	}
	if raw.SpeechDuration != nil {
		t.SpeechDuration = *raw.SpeechDuration
	}
	if raw.SilenceDuration != nil {
		t.SilenceDuration = *raw.SilenceDuration
	}
	if raw.PreBufferDuration != nil {
		t.PreBufferDuration = *raw.PreBufferDuration
	}
	return nil
}

// MarshalYAML writes the VAD fields only for toggle_vad
func (t TriggerConfig) MarshalYAML() (any, error) {
	if t.Type != TriggerToggleVAD {
		return struct {
			Type string `yaml:"type"`
		}{t.Type}, nil
	}
	return triggerVADFields(t), nil
}

func (t TriggerConfig) validate() error {
	switch t.Type {
	case TriggerPushToTalk, TriggerToggle:
		return nil
	case TriggerToggleVAD:
	default:
		return fmt.Errorf("unknown type %q", t.Type)
	}

	var errs []error
	if t.Threshold < 0 || t.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold must be within [0, 1], got %v", t.Threshold))
	}
	if t.SpeechDuration < 0 {
		errs = append(errs, errors.New("speech_duration must not be negative"))
	}
	if t.SilenceDuration < 0 {
		errs = append(errs, errors.New("silence_duration must not be negative"))
	}
	if t.PreBufferDuration < 0 {
		errs = append(errs, errors.New("pre_buffer_duration must not be negative"))
	}
	return errors.Join(errs...)
}

// PromptConfig is the tagged initial prompt
type PromptConfig struct {
	Type       string   `yaml:"type"`
	Vocabulary []string `yaml:"vocabulary,omitempty"`
	Prompt     string   `yaml:"prompt,omitempty"`
}

// Value converts the configuration into an stt.Prompt
func (p PromptConfig) Value() (stt.Prompt, error) {
	switch p.Type {
	case PromptNone, "":
		if len(p.Vocabulary) > 0 || p.Prompt != "" {
			return nil, fmt.Errorf("type %s takes no vocabulary or prompt", PromptNone)
		}
		return stt.NoPrompt{}, nil
	case PromptVocabulary:
		if p.Prompt != "" {
			return nil, fmt.Errorf("type %s takes a vocabulary list, not a prompt", PromptVocabulary)
		}
		return stt.Vocabulary{Words: p.Vocabulary}, nil
	case PromptRaw:
		if len(p.Vocabulary) > 0 {
			return nil, fmt.Errorf("type %s takes a prompt, not a vocabulary list", PromptRaw)
		}
		return stt.RawPrompt{Text: p.Prompt}, nil
	default:
		return nil, fmt.Errorf("unknown type %q", p.Type)
	}
}

// Replacements is an ordered mapping of source text to replacement text
type Replacements []postprocess.Rule

// UnmarshalYAML keeps the mapping order as written
func (r *Replacements) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*r = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: replacements must be a mapping", node.Line)
	}

	rules := make(Replacements, 0, len(node.Content)/2)
	seen := make(map[string]int, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Kind != yaml.ScalarNode || value.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: replacement keys and values must be strings", key.Line)
		}
		if first, dup := seen[key.Value]; dup {
			return fmt.Errorf("line %d: replacement %q already defined on line %d", key.Line, key.Value, first)
		}
		seen[key.Value] = key.Line

		to := value.Value
		if value.Tag == "!!null" {
			to = ""
		}
		rules = append(rules, postprocess.Rule{From: key.Value, To: to})
	}
	*r = rules
	return nil
}

// MarshalYAML writes the rules as a mapping in order
func (r Replacements) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if len(r) == 0 {
		node.Style = yaml.FlowStyle
	}
	for _, rule := range r {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: rule.From},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: rule.To},
		)
	}
	return node, nil
}

// Table builds the post-processing table
func (r Replacements) Table() (*postprocess.Table, error) {
	return postprocess.NewTable(r)
}
