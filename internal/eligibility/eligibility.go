// Package eligibility scores a completed screening interview against a
// study's criteria.
//
// High priority criteria carry weight 3, low priority weight 1. A participant
// is eligible when the weighted score reaches the threshold AND every high
// priority criterion is met; a single missed high priority criterion
// disqualifies regardless of score.
package eligibility

import (
	"context"
	"fmt"
	"strings"

	"github.com/mbartova/medscreen/internal/llm"
	"github.com/mbartova/medscreen/internal/protocol"
	"github.com/mbartova/medscreen/internal/store"
)

const (
	highPriorityWeight = 3
	lowPriorityWeight  = 1
	eligibleThreshold  = 70.0
)

// Answer pairs a criterion with the participant's transcribed response.
type Answer struct {
	Criterion store.Criterion
	Response  string
}

// Evaluate scores the answers with keyword matching only and returns the
// full eligibility result.
func Evaluate(participantID string, answers []Answer) *protocol.EligibilityResult {
	return EvaluateWithJudge(context.Background(), participantID, answers, nil)
}

// EvaluateWithJudge scores the answers and returns the full eligibility
// result. When a judge is given, each criterion is decided by the model with
// keyword matching as the fallback; a nil judge means keyword matching only.
func EvaluateWithJudge(ctx context.Context, participantID string, answers []Answer, judge llm.Client) *protocol.EligibilityResult {
	var totalWeight, metWeight int
	highTotal, highMet := 0, 0
	results := make([]protocol.CriterionResult, 0, len(answers))

	for _, a := range answers {
		weight := lowPriorityWeight
		if a.Criterion.Priority == "high" {
			weight = highPriorityWeight
			highTotal++
		}
		totalWeight += weight

		meets, judged := judgeResponse(ctx, judge, a)
		if !judged {
			meets = responseMatches(a.Criterion.ExpectedResponse, a.Response)
		}
		if meets {
			metWeight += weight
			if a.Criterion.Priority == "high" {
				highMet++
			}
		}

		results = append(results, protocol.CriterionResult{
			CriterionID: a.Criterion.ID,
			Criterion:   a.Criterion.Text,
			Response:    a.Response,
			Meets:       meets,
			Priority:    a.Criterion.Priority,
			Reasoning:   reasoning(a.Criterion.ExpectedResponse, meets),
		})
	}

	score := 0.0
	if totalWeight > 0 {
		score = float64(metWeight) / float64(totalWeight) * 100
	}

	eligible := score >= eligibleThreshold && highMet == highTotal

	return &protocol.EligibilityResult{
		ParticipantID:        participantID,
		Eligible:             eligible,
		Score:                score,
		Summary:              summary(eligible, score, highMet, highTotal),
		CriteriaMet:          results,
		HighPriorityCriteria: fmt.Sprintf("%d/%d", highMet, highTotal),
		EvaluationTimestamp:  protocol.Now(),
	}
}

// judgeResponse asks the model whether the answer satisfies the criterion.
// The second return value is false when no usable judgment was produced and
// the caller should fall back to keyword matching.
func judgeResponse(ctx context.Context, judge llm.Client, a Answer) (bool, bool) {
	if judge == nil {
		return false, false
	}
	reply, err := judge.Complete(ctx, []llm.Message{
		{Role: "system", Content: llm.JudgmentSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Criterion: %s\nExpected response: %s\nParticipant's answer: %s",
			a.Criterion.Text, a.Criterion.ExpectedResponse, a.Response)},
	})
	if err != nil {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "yes":
		return true, true
	case "no":
		return false, true
	}
	return false, false
}

// responseMatches decides whether a transcribed answer satisfies the
// expected response. Expected responses are "yes"/"no" for closed criteria;
// anything else is matched as a keyword.
func responseMatches(expected, response string) bool {
	expected = strings.ToLower(strings.TrimSpace(expected))
	response = strings.ToLower(strings.TrimSpace(response))
	if response == "" {
		return false
	}

	switch expected {
	case "yes":
		return isAffirmative(response)
	case "no":
		return isNegative(response)
	default:
		return strings.Contains(response, expected)
	}
}

var affirmativeWords = []string{"yes", "yeah", "yep", "correct", "i do", "i am", "i have", "sure", "definitely", "absolutely"}

var negativeWords = []string{"no", "nope", "not", "never", "don't", "doesn't", "haven't", "isn't", "won't"}

func isAffirmative(response string) bool {
	if isNegative(response) {
		return false
	}
	for _, w := range affirmativeWords {
		if containsPhrase(response, w) {
			return true
		}
	}
	return false
}

func isNegative(response string) bool {
	for _, w := range negativeWords {
		if containsPhrase(response, w) {
			return true
		}
	}
	return false
}

// containsPhrase matches on word boundaries so "no" does not match "know".
func containsPhrase(response, phrase string) bool {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?', ';', ':':
			return ' '
		}
		return r
	}, response)
	padded := " " + strings.Join(strings.Fields(cleaned), " ") + " "
	return strings.Contains(padded, " "+phrase+" ")
}

func reasoning(expected string, meets bool) string {
	if meets {
		return fmt.Sprintf("response matches expected %q", expected)
	}
	return fmt.Sprintf("response does not match expected %q", expected)
}

func summary(eligible bool, score float64, highMet, highTotal int) string {
	if eligible {
		return fmt.Sprintf("Eligible: score %.0f%% with all %d high priority criteria met.", score, highTotal)
	}
	if highMet < highTotal {
		return fmt.Sprintf("Not eligible: %d of %d high priority criteria met.", highMet, highTotal)
	}
	return fmt.Sprintf("Not eligible: score %.0f%% below threshold.", score)
}
