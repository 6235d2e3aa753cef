// Package interview drives the scripted screening conversation: consent,
// one question per criterion, then submission and evaluation.
package interview

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mbartova/medscreen/internal/eligibility"
	"github.com/mbartova/medscreen/internal/llm"
	"github.com/mbartova/medscreen/internal/store"
)

// Phase is where the conversation currently is.
type Phase string

const (
	PhaseConsent     Phase = "consent"
	PhaseQuestioning Phase = "questioning"
	PhaseSubmission  Phase = "submission"
	PhaseCompleted   Phase = "completed"
)

// Reply is one agent turn, ready to be shipped as an agent message.
type Reply struct {
	Content            string
	Phase              Phase
	RequiresResponse   bool
	AwaitingSubmission bool
	Evaluating         bool
	IsFinal            bool
	ConsentRejected    bool
	QuestionNumber     int
	TotalQuestions     int
}

// Agent holds the conversation state for one session.
type Agent struct {
	study      store.Study
	classifier llm.Client
	logger     *log.Logger

	phase       Phase
	questionIdx int
	responses   map[string]string // criterion ID -> transcribed answer
}

// New creates an agent for one screening session.
func New(study store.Study, classifier llm.Client, logger *log.Logger) *Agent {
	if logger == nil {
		logger = log.Default()
	}
	return &Agent{
		study:      study,
		classifier: classifier,
		logger:     logger,
		phase:      PhaseConsent,
		responses:  make(map[string]string),
	}
}

// CurrentPhase returns where the conversation currently is.
func (a *Agent) CurrentPhase() Phase {
	return a.phase
}

// Answers returns the collected responses paired with their criteria, in
// study order. Unanswered criteria get an empty response.
func (a *Agent) Answers() []eligibility.Answer {
	answers := make([]eligibility.Answer, 0, len(a.study.Criteria))
	for _, c := range a.study.Criteria {
		answers = append(answers, eligibility.Answer{
			Criterion: c,
			Response:  a.responses[c.ID],
		})
	}
	return answers
}

// Greeting returns the opening turn: study introduction plus the consent
// question.
func (a *Agent) Greeting() Reply {
	total := len(a.study.Criteria)
	var b strings.Builder
	fmt.Fprintf(&b, "Hello! I'm your screening assistant for %q.", a.study.Title)
	if a.study.Description != "" {
		fmt.Fprintf(&b, " This study aims to %s.", strings.ToLower(strings.TrimRight(a.study.Description, ".")))
	}
	fmt.Fprintf(&b, " You'll be asked %d screening questions to see if you might be eligible. ", total)
	b.WriteString(consentPrompt)

	return Reply{
		Content:          b.String(),
		Phase:            PhaseConsent,
		RequiresResponse: true,
		QuestionNumber:   0,
		TotalQuestions:   total,
	}
}

const consentPrompt = "Do you consent to proceed with the screening questions, or do you have any questions about the study before deciding?"

const submitPrompt = "Thank you for answering all the screening questions. Would you like to submit your responses for evaluation, or do you have any questions about the study before deciding?"

const unclearPrompt = "I didn't catch that clearly. Please speak more clearly, or speak in the language you selected."

// HandleUtterance processes one participant turn and returns the agent's
// reply. After the Phase reaches completed, further utterances return final
// replies without changing state.
func (a *Agent) HandleUtterance(ctx context.Context, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return a.stay(unclearPrompt), nil
	}

	intent, err := a.classifier.ClassifyIntent(ctx, a.classifierPhase(), text)
	if err != nil {
		a.logger.Printf("intent classification failed, treating as unclear: %v", err)
		intent = llm.IntentUnclear
	}

	switch a.phase {
	case PhaseConsent:
		return a.handleConsent(ctx, text, intent)
	case PhaseQuestioning:
		return a.handleQuestioning(ctx, text, intent)
	case PhaseSubmission:
		return a.handleSubmission(ctx, text, intent)
	default:
		return Reply{
			Content:        "Interview completed. Thank you for your time!",
			Phase:          PhaseCompleted,
			IsFinal:        true,
			QuestionNumber: len(a.study.Criteria),
			TotalQuestions: len(a.study.Criteria),
		}, nil
	}
}

// classifierPhase collapses internal phases to the two the classifier knows.
func (a *Agent) classifierPhase() string {
	if a.phase == PhaseConsent || a.phase == PhaseSubmission {
		return "consent"
	}
	return "questioning"
}

func (a *Agent) handleConsent(ctx context.Context, text string, intent llm.Intent) (Reply, error) {
	switch intent {
	case llm.IntentAffirm, llm.IntentSubmit:
		if len(a.study.Criteria) == 0 {
			a.phase = PhaseSubmission
			return a.stay(submitPrompt), nil
		}
		a.phase = PhaseQuestioning
		a.questionIdx = 0
		return a.askCurrentQuestion("Great! Let's begin with the screening questions. "), nil

	case llm.IntentDecline:
		a.phase = PhaseCompleted
		return Reply{
			Content:         "I understand. Thank you for your time. If you change your mind, feel free to try again later.",
			Phase:           PhaseCompleted,
			IsFinal:         true,
			ConsentRejected: true,
			QuestionNumber:  0,
			TotalQuestions:  len(a.study.Criteria),
		}, nil

	case llm.IntentRepeatInstruction, llm.IntentRepeatCurrent:
		return a.stay(consentPrompt), nil

	default:
		clarification := a.clarify(ctx, text)
		return a.stay(clarification + " " + consentPrompt), nil
	}
}

func (a *Agent) handleQuestioning(ctx context.Context, text string, intent llm.Intent) (Reply, error) {
	current := a.study.Criteria[a.questionIdx]

	switch intent {
	case llm.IntentDecline:
		a.phase = PhaseCompleted
		return Reply{
			Content:         "I understand. Thank you for your time. If you change your mind and would like to participate in the future, feel free to try again.",
			Phase:           PhaseCompleted,
			IsFinal:         true,
			ConsentRejected: true,
			QuestionNumber:  a.questionIdx + 1,
			TotalQuestions:  len(a.study.Criteria),
		}, nil

	case llm.IntentRepeatCurrent, llm.IntentRepeatInstruction:
		return a.askCurrentQuestion(""), nil

	case llm.IntentRepeatPrevious:
		if a.questionIdx > 0 {
			a.questionIdx--
			delete(a.responses, a.study.Criteria[a.questionIdx].ID)
		}
		return a.askCurrentQuestion(""), nil

	case llm.IntentSubmit:
		remaining := len(a.study.Criteria) - a.questionIdx
		return a.stay(fmt.Sprintf("You still have %d questions to answer before submitting. ", remaining) + current.Question), nil

	case llm.IntentUnclear:
		clarification := a.clarify(ctx, text)
		return a.stay(clarification + " " + current.Question), nil

	default: // answer, or anything else usable as one
		a.responses[current.ID] = text
		a.questionIdx++
		if a.questionIdx < len(a.study.Criteria) {
			return a.askCurrentQuestion(""), nil
		}
		a.phase = PhaseSubmission
		return Reply{
			Content:            submitPrompt,
			Phase:              PhaseQuestioning,
			RequiresResponse:   true,
			AwaitingSubmission: true,
			QuestionNumber:     len(a.study.Criteria),
			TotalQuestions:     len(a.study.Criteria),
		}, nil
	}
}

func (a *Agent) handleSubmission(ctx context.Context, text string, intent llm.Intent) (Reply, error) {
	switch intent {
	case llm.IntentSubmit, llm.IntentAffirm:
		a.phase = PhaseCompleted
		return Reply{
			Content:        "Evaluating your responses...",
			Phase:          PhaseQuestioning,
			Evaluating:     true,
			QuestionNumber: len(a.study.Criteria),
			TotalQuestions: len(a.study.Criteria),
		}, nil

	case llm.IntentDecline:
		a.phase = PhaseCompleted
		return Reply{
			Content:         "I understand. Thank you for taking the time to answer the screening questions. If you change your mind and would like to participate in the future, feel free to try again.",
			Phase:           PhaseCompleted,
			IsFinal:         true,
			ConsentRejected: true,
			QuestionNumber:  len(a.study.Criteria),
			TotalQuestions:  len(a.study.Criteria),
		}, nil

	default:
		clarification := a.clarify(ctx, text)
		return Reply{
			Content:            clarification + " " + submitPrompt,
			Phase:              PhaseQuestioning,
			RequiresResponse:   true,
			AwaitingSubmission: true,
			QuestionNumber:     len(a.study.Criteria),
			TotalQuestions:     len(a.study.Criteria),
		}, nil
	}
}

// Completion returns the closing turn spoken after evaluation finishes.
func (a *Agent) Completion() Reply {
	a.phase = PhaseCompleted
	return Reply{
		Content:        "Interview completed. Thank you for your time!",
		Phase:          PhaseCompleted,
		IsFinal:        true,
		QuestionNumber: len(a.study.Criteria),
		TotalQuestions: len(a.study.Criteria),
	}
}

// askCurrentQuestion builds the reply for the question at questionIdx.
func (a *Agent) askCurrentQuestion(prefix string) Reply {
	current := a.study.Criteria[a.questionIdx]
	return Reply{
		Content:          prefix + current.Question,
		Phase:            PhaseQuestioning,
		RequiresResponse: true,
		QuestionNumber:   a.questionIdx + 1,
		TotalQuestions:   len(a.study.Criteria),
	}
}

// stay re-prompts without advancing the conversation.
func (a *Agent) stay(content string) Reply {
	number := 0
	if a.phase == PhaseQuestioning {
		number = a.questionIdx + 1
	}
	if a.phase == PhaseSubmission {
		number = len(a.study.Criteria)
	}
	phase := PhaseConsent
	if a.phase != PhaseConsent {
		phase = PhaseQuestioning
	}
	return Reply{
		Content:            content,
		Phase:              phase,
		RequiresResponse:   true,
		AwaitingSubmission: a.phase == PhaseSubmission,
		QuestionNumber:     number,
		TotalQuestions:     len(a.study.Criteria),
	}
}

// clarify asks the LLM for an off-script reply; on failure it falls back to
// a generic redirect.
func (a *Agent) clarify(ctx context.Context, text string) string {
	reply, err := a.classifier.Complete(ctx, []llm.Message{
		{Role: "system", Content: llm.ClarificationSystemPrompt},
		{Role: "system", Content: a.studyContext()},
		{Role: "user", Content: text},
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		a.logger.Printf("clarification failed: %v", err)
		return "I didn't quite understand that."
	}
	return strings.TrimSpace(reply)
}

func (a *Agent) studyContext() string {
	return fmt.Sprintf("Study: %s. %s The screening has %d questions.",
		a.study.Title, a.study.Description, len(a.study.Criteria))
}
