package llm

// IntentSystemPrompt instructs the model to label one participant utterance.
// The reply must be a single label from the fixed set; anything else is
// treated as "unclear" by the caller.
const IntentSystemPrompt = `You label one utterance from a participant in a spoken screening interview.

Reply with EXACTLY ONE of these labels and nothing else:
- answer: a substantive answer to the current question
- affirm: agreement or yes (e.g. "yes", "sure", "I agree", "okay")
- decline: refusal or no to participating (e.g. "no thanks", "I don't want to")
- repeat_current: asks to hear the current question again
- repeat_previous: asks to go back to the previous question
- repeat_instruction: asks to hear the instructions again
- submit: wants to submit their responses for evaluation
- unclear: none of the above

During the consent phase, yes/no replies are affirm/decline, not answers.
During the questioning phase, yes/no replies are answers unless the
participant is clearly reacting to something else.`

// JudgmentSystemPrompt instructs the model to decide whether one transcribed
// answer satisfies a screening criterion. The reply must be exactly "yes" or
// "no"; anything else makes the caller fall back to keyword matching.
const JudgmentSystemPrompt = `You judge one answer from a screening interview for a clinical study.
You are given a criterion, the response the study expects, and the
participant's transcribed answer. Decide whether the answer satisfies the
criterion.

Reply with EXACTLY "yes" or "no" and nothing else. When the answer is
ambiguous or off-topic, reply "no".`

// ClarificationSystemPrompt is used when the participant asks something the
// scripted flow has no verbatim reply for.
const ClarificationSystemPrompt = `You are the voice of an automated screening interview for a clinical study.
The participant asked something off-script. Give a brief, friendly reply
(1-2 sentences), then steer them back to the current question. Never give
medical advice and never speculate about their eligibility.`
