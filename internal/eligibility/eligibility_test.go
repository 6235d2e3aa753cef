package eligibility

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mbartova/medscreen/internal/llm"
	"github.com/mbartova/medscreen/internal/store"
)

func criterion(id, expected, priority string) store.Criterion {
	return store.Criterion{
		ID:               id,
		Text:             "criterion " + id,
		Question:         "question for " + id,
		ExpectedResponse: expected,
		Priority:         priority,
	}
}

func TestEvaluateAllMet(t *testing.T) {
	result := Evaluate("p1", []Answer{
		{Criterion: criterion("c1", "yes", "high"), Response: "Yes, I am."},
		{Criterion: criterion("c2", "no", "high"), Response: "No, never."},
		{Criterion: criterion("c3", "yes", "low"), Response: "yeah definitely"},
	})

	if !result.Eligible {
		t.Error("should be eligible when everything is met")
	}
	if result.Score != 100 {
		t.Errorf("score = %v, want 100", result.Score)
	}
	if result.HighPriorityCriteria != "2/2" {
		t.Errorf("high priority = %q, want %q", result.HighPriorityCriteria, "2/2")
	}
	if len(result.CriteriaMet) != 3 {
		t.Fatalf("criteria results = %d, want 3", len(result.CriteriaMet))
	}
	for _, cr := range result.CriteriaMet {
		if !cr.Meets {
			t.Errorf("criterion %s should be met", cr.CriterionID)
		}
	}
}

func TestEvaluateMissedHighPriorityDisqualifies(t *testing.T) {
	// Weighted score stays at 75% but the missed criterion is high priority.
	result := Evaluate("p1", []Answer{
		{Criterion: criterion("c1", "yes", "high"), Response: "yes"},
		{Criterion: criterion("c2", "no", "high"), Response: "Yes, I do use one."},
		{Criterion: criterion("c3", "yes", "low"), Response: "yes"},
		{Criterion: criterion("c4", "yes", "low"), Response: "yes"},
		{Criterion: criterion("c5", "yes", "low"), Response: "yes"},
		{Criterion: criterion("c6", "yes", "low"), Response: "yes"},
	})

	if result.Score < 70 {
		t.Fatalf("score = %v, test needs a score above threshold", result.Score)
	}
	if result.Eligible {
		t.Error("missed high priority criterion must disqualify regardless of score")
	}
	if result.HighPriorityCriteria != "1/2" {
		t.Errorf("high priority = %q, want %q", result.HighPriorityCriteria, "1/2")
	}
}

func TestEvaluateScoreBelowThreshold(t *testing.T) {
	// All high priority met, but too many low priority misses.
	result := Evaluate("p1", []Answer{
		{Criterion: criterion("c1", "yes", "high"), Response: "yes"},
		{Criterion: criterion("c2", "yes", "low"), Response: "no"},
		{Criterion: criterion("c3", "yes", "low"), Response: "no"},
		{Criterion: criterion("c4", "yes", "low"), Response: "no"},
	})

	// 3 of 6 weight points.
	if result.Score != 50 {
		t.Errorf("score = %v, want 50", result.Score)
	}
	if result.Eligible {
		t.Error("should not be eligible below the threshold")
	}
}

func TestEvaluateHighPriorityWeighting(t *testing.T) {
	// One high priority hit outweighs two low priority misses: 3/5 = 60%.
	result := Evaluate("p1", []Answer{
		{Criterion: criterion("c1", "yes", "high"), Response: "yes"},
		{Criterion: criterion("c2", "yes", "low"), Response: "no"},
		{Criterion: criterion("c3", "yes", "low"), Response: "no"},
	})

	if result.Score != 60 {
		t.Errorf("score = %v, want 60", result.Score)
	}
}

func TestEvaluateEmptyAnswers(t *testing.T) {
	result := Evaluate("p1", nil)

	if result.Eligible {
		t.Error("no answers should not be eligible")
	}
	if result.Score != 0 {
		t.Errorf("score = %v, want 0", result.Score)
	}
}

func TestResponseMatches(t *testing.T) {
	tests := []struct {
		expected string
		response string
		want     bool
	}{
		{"yes", "Yes, I am over 18.", true},
		{"yes", "yeah I think so", true},
		{"yes", "no", false},
		{"yes", "I am not", false},
		{"no", "No, I don't take any medication.", true},
		{"no", "never", true},
		{"no", "yes I do", false},
		{"no", "I know him", false},
		{"daily", "I exercise daily in the morning", true},
		{"daily", "only on weekends", false},
		{"yes", "", false},
	}

	for _, tt := range tests {
		if got := responseMatches(tt.expected, tt.response); got != tt.want {
			t.Errorf("responseMatches(%q, %q) = %v, want %v", tt.expected, tt.response, got, tt.want)
		}
	}
}

// judgeStub returns a canned verdict per criterion ID and falls through to
// keyword matching for everything else.
type judgeStub struct {
	verdicts map[string]string
}

func (j judgeStub) ClassifyIntent(ctx context.Context, phase, utterance string) (llm.Intent, error) {
	return llm.IntentUnclear, nil
}

func (j judgeStub) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	for id, verdict := range j.verdicts {
		if strings.Contains(msgs[len(msgs)-1].Content, "criterion "+id) {
			return verdict, nil
		}
	}
	return "", errors.New("no verdict")
}

func TestEvaluateWithJudge(t *testing.T) {
	judge := judgeStub{verdicts: map[string]string{
		"c1": "yes",
		"c2": "no",
	}}

	// c1: keyword matching would say no, judge overrides to yes.
	// c2: keyword matching would say yes, judge overrides to no.
	// c3: judge errors, keyword fallback says yes.
	result := EvaluateWithJudge(context.Background(), "p1", []Answer{
		{Criterion: criterion("c1", "yes", "high"), Response: "I believe so, doctor said it was fine"},
		{Criterion: criterion("c2", "yes", "low"), Response: "yes"},
		{Criterion: criterion("c3", "yes", "low"), Response: "yes absolutely"},
	}, judge)

	byID := map[string]bool{}
	for _, cr := range result.CriteriaMet {
		byID[cr.CriterionID] = cr.Meets
	}
	if !byID["c1"] {
		t.Error("c1 should follow the judge's yes")
	}
	if byID["c2"] {
		t.Error("c2 should follow the judge's no")
	}
	if !byID["c3"] {
		t.Error("c3 should fall back to keyword matching")
	}
}

func TestEvaluateWithJudgeUnparseableVerdict(t *testing.T) {
	judge := judgeStub{verdicts: map[string]string{"c1": "definitely maybe"}}

	result := EvaluateWithJudge(context.Background(), "p1", []Answer{
		{Criterion: criterion("c1", "yes", "high"), Response: "yes"},
	}, judge)

	if !result.CriteriaMet[0].Meets {
		t.Error("unparseable verdict should fall back to keyword matching")
	}
}
