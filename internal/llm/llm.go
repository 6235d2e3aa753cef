package llm

import "context"

// Intent is what the participant meant with an utterance, interpreted in the
// context of the current interview phase.
type Intent string

const (
	IntentAnswer            Intent = "answer"             // a substantive answer to the current question
	IntentAffirm            Intent = "affirm"             // yes / agreement (consent, confirmations)
	IntentDecline           Intent = "decline"            // no / refusal to participate
	IntentRepeatCurrent     Intent = "repeat_current"     // repeat the current question
	IntentRepeatPrevious    Intent = "repeat_previous"    // go back to the previous question
	IntentRepeatInstruction Intent = "repeat_instruction" // repeat the consent instruction
	IntentSubmit            Intent = "submit"             // submit responses for evaluation
	IntentUnclear           Intent = "unclear"            // could not be interpreted
)

// Message represents a conversation message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Client defines the interface for LLM providers.
type Client interface {
	// ClassifyIntent interprets one participant utterance. Phase is
	// "consent" or "questioning" and changes which intents are plausible.
	ClassifyIntent(ctx context.Context, phase, utterance string) (Intent, error)

	// Complete generates a short free-text reply, used for clarification
	// turns that the scripted flow cannot answer verbatim.
	Complete(ctx context.Context, messages []Message) (string, error)
}
