// Package model drives the model-invocation protocol: payload
// construction, the bounded tool-calling loop, and structured-output
// extraction for the chat, filter, and sticker-classifier
// specializations.
package model

// Profile is the immutable configuration of one model instance: model
// identifier plus sampling parameters. Loaded once at construction;
// reconfiguring means building a new profile and a new model.
type Profile struct {
	Name             string
	Temperature      float64
	TopP             float64
	TopK             int
	MaxTokens        int
	FrequencyPenalty float64
	PresencePenalty  float64
	Stop             []string
	N                int
	ResponseFormat   string // "json_object" or empty to omit the hint
	EnableThinking   bool
	ThinkingBudget   int
}

// withDefaults fills unset sampling fields. Temperature is left alone
// since zero means deterministic sampling.
func (p Profile) withDefaults() Profile {
	if p.TopP == 0 {
		p.TopP = 1.0
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = 1024
	}
	if p.N == 0 {
		p.N = 1
	}
	if p.ThinkingBudget == 0 {
		p.ThinkingBudget = 512
	}
	return p
}
