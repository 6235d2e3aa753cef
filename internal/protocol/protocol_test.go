package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseAgentMessage(t *testing.T) {
	raw := []byte(`{
		"type": "agent_message",
		"content": "Do you consent to proceed?",
		"timestamp": "2025-06-01T10:00:00Z",
		"phase": "consent",
		"requires_response": true,
		"question_number": 0,
		"total_questions": 7
	}`)

	in, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if in.Kind != TypeAgentMessage {
		t.Fatalf("Kind = %q, want %q", in.Kind, TypeAgentMessage)
	}
	m := in.Agent
	if m == nil {
		t.Fatal("Agent is nil")
	}
	if m.Content != "Do you consent to proceed?" {
		t.Errorf("Content = %q", m.Content)
	}
	if m.Phase != PhaseConsent {
		t.Errorf("Phase = %q, want %q", m.Phase, PhaseConsent)
	}
	if !m.RequiresResponse {
		t.Error("RequiresResponse should be true")
	}
	if m.QuestionNumber == nil || *m.QuestionNumber != 0 {
		t.Errorf("QuestionNumber = %v, want 0", m.QuestionNumber)
	}
	if m.TotalQuestions == nil || *m.TotalQuestions != 7 {
		t.Errorf("TotalQuestions = %v, want 7", m.TotalQuestions)
	}
}

func TestParseAgentMessageOmittedCounters(t *testing.T) {
	raw := []byte(`{"type": "agent_message", "content": "One moment.", "timestamp": "2025-06-01T10:00:00Z"}`)

	in, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if in.Agent.QuestionNumber != nil {
		t.Error("QuestionNumber should be nil when omitted")
	}
	if in.Agent.TotalQuestions != nil {
		t.Error("TotalQuestions should be nil when omitted")
	}
}

func TestParseUserMessage(t *testing.T) {
	raw := []byte(`{"type": "user_message", "content": "I am 34 years old", "timestamp": "2025-06-01T10:01:00Z"}`)

	in, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if in.Kind != TypeUserMessage || in.User == nil {
		t.Fatalf("unexpected envelope: %+v", in)
	}
	if in.User.Content != "I am 34 years old" {
		t.Errorf("Content = %q", in.User.Content)
	}
}

func TestParseInterviewComplete(t *testing.T) {
	raw := []byte(`{
		"type": "interview_complete",
		"eligibility": {
			"participant_id": "P-1001",
			"eligible": true,
			"score": 90.5,
			"criteria_met": [{"criterion_id": "age", "criterion": "Age 18-65", "response": "34", "meets_criteria": true, "priority": "high"}],
			"evaluation_timestamp": "2025-06-01T10:20:00Z"
		},
		"timestamp": "2025-06-01T10:20:01Z"
	}`)

	in, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if in.Kind != TypeInterviewComplete || in.Complete == nil {
		t.Fatalf("unexpected envelope: %+v", in)
	}
	e := in.Complete.Eligibility
	if e == nil {
		t.Fatal("Eligibility is nil")
	}
	if !e.Eligible || e.Score != 90.5 {
		t.Errorf("Eligible = %v, Score = %v", e.Eligible, e.Score)
	}
	if len(e.CriteriaMet) != 1 || !e.CriteriaMet[0].Meets {
		t.Errorf("CriteriaMet = %+v", e.CriteriaMet)
	}
}

func TestParseErrorMessage(t *testing.T) {
	raw := []byte(`{"type": "error", "content": "Could not understand audio. Please try again.", "timestamp": "2025-06-01T10:02:00Z"}`)

	in, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if in.Kind != TypeError || in.Err == nil {
		t.Fatalf("unexpected envelope: %+v", in)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "not json at all"},
		{"unknown type", `{"type": "mystery"}`},
		{"empty object", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.raw)); err == nil {
				t.Errorf("Parse(%q) should fail", tt.raw)
			}
		})
	}
}

func TestIsControl(t *testing.T) {
	for _, c := range []string{ControlRepeatCurrent, ControlRepeatPrevious, ControlSubmit, ControlHearInstruction} {
		if !IsControl(c) {
			t.Errorf("IsControl(%q) = false", c)
		}
	}
	if IsControl("I take aspirin daily.") {
		t.Error("free-text answer classified as control")
	}
}

func TestParseClient(t *testing.T) {
	m, err := ParseClient([]byte(`{"type": "audio_data", "audio": "QUJD"}`))
	if err != nil {
		t.Fatalf("ParseClient: %v", err)
	}
	if m.Type != TypeAudioData || m.Audio != "QUJD" {
		t.Errorf("got %+v", m)
	}

	m, err = ParseClient([]byte(`{"type": "text_message", "content": "yes"}`))
	if err != nil {
		t.Fatalf("ParseClient: %v", err)
	}
	if m.Type != TypeTextMessage || m.Content != "yes" {
		t.Errorf("got %+v", m)
	}

	if _, err := ParseClient([]byte(`{"type": "start_recording"}`)); err != nil {
		t.Errorf("start_recording: %v", err)
	}
}

func TestParseClientRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "garbage"},
		{"server type", `{"type": "agent_message"}`},
		{"empty object", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseClient([]byte(tt.raw)); err == nil {
				t.Errorf("ParseClient(%q) should fail", tt.raw)
			}
		})
	}
}

func TestOutboundMessages(t *testing.T) {
	sr, _ := json.Marshal(NewStartRecording())
	if string(sr) != `{"type":"start_recording"}` {
		t.Errorf("start_recording = %s", sr)
	}

	ad, _ := json.Marshal(NewAudioData("QUJD"))
	if string(ad) != `{"type":"audio_data","audio":"QUJD"}` {
		t.Errorf("audio_data = %s", ad)
	}

	tm, _ := json.Marshal(NewTextMessage(ControlSubmit))
	want := `{"type":"text_message","content":"I want to submit my responses."}`
	if string(tm) != want {
		t.Errorf("text_message = %s, want %s", tm, want)
	}
}
