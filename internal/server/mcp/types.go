package mcp

// TranscribeArgs are the arguments of the transcribe_audio tool
type TranscribeArgs struct {
	Audio      string   `json:"audio" jsonschema:"base64-encoded WAV file, any sample rate and channel count"`
	Prompt     string   `json:"prompt,omitempty" jsonschema:"initial prompt; overrides the configured prompt"`
	Vocabulary []string `json:"vocabulary,omitempty" jsonschema:"words the speaker is likely to use; overrides the configured prompt"`
}

// TranscribeResult is the structured result of transcribe_audio
type TranscribeResult struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"` // audio seconds
	Elapsed  float64 `json:"elapsed"`  // inference seconds
}

// ListModelsArgs are the arguments of the list_models tool
type ListModelsArgs struct{}

// ModelInfo describes one catalog entry
type ModelInfo struct {
	Name        string `json:"name"`
	Engine      string `json:"engine"`
	Language    string `json:"language"`
	Size        string `json:"size"`
	Description string `json:"description"`
	Downloaded  bool   `json:"downloaded"`
}
