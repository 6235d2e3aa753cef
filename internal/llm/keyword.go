package llm

import (
	"context"
	"strings"
)

// KeywordClassifier is the fallback Client used when no OpenAI API key is
// configured. It covers the fixed control phrases the clients send and common
// yes/no replies; everything else is an answer or unclear.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the keyword fallback classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// ClassifyIntent labels an utterance using keyword rules.
func (k *KeywordClassifier) ClassifyIntent(_ context.Context, phase, utterance string) (Intent, error) {
	text := strings.ToLower(strings.TrimSpace(utterance))
	if text == "" {
		return IntentUnclear, nil
	}

	switch {
	case strings.Contains(text, "submit"):
		return IntentSubmit, nil
	case strings.Contains(text, "instruction"):
		return IntentRepeatInstruction, nil
	case strings.Contains(text, "previous question") || strings.Contains(text, "go back"):
		return IntentRepeatPrevious, nil
	case strings.Contains(text, "repeat") || strings.Contains(text, "say that again") || strings.Contains(text, "pardon"):
		return IntentRepeatCurrent, nil
	}

	if phase == "consent" {
		if hasAnyPrefix(text, "yes", "yeah", "yep", "sure", "okay", "ok", "i agree", "i consent", "absolutely") {
			return IntentAffirm, nil
		}
		if hasAnyPrefix(text, "no", "nope", "i don't", "i do not", "i decline", "not interested") {
			return IntentDecline, nil
		}
		return IntentUnclear, nil
	}

	return IntentAnswer, nil
}

// Complete returns a fixed redirect line; the fallback cannot generate text.
func (k *KeywordClassifier) Complete(_ context.Context, _ []Message) (string, error) {
	return "I can only help with the screening questions. Let's continue with the current question.", nil
}

func hasAnyPrefix(text string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}
