package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// getTestDB returns a database pool for testing.
// Skips the test if DATABASE_URL is not set.
func getTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

func TestStudyOperations(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	study := Study{
		ID:          "test-study-ops",
		Title:       "Sleep Apnea Screening",
		Description: "Device trial",
		Criteria: []Criterion{
			{ID: "c1", Text: "Age 18+", Question: "Are you over 18?", ExpectedResponse: "yes", Priority: "high"},
			{ID: "c2", Text: "No CPAP use", Question: "Do you currently use a CPAP machine?", ExpectedResponse: "no", Priority: "low"},
		},
	}
	if err := s.UpsertStudy(ctx, study); err != nil {
		t.Fatalf("UpsertStudy failed: %v", err)
	}
	defer s.DeleteStudy(ctx, study.ID)

	got, err := s.GetStudy(ctx, study.ID)
	if err != nil {
		t.Fatalf("GetStudy failed: %v", err)
	}
	if got.Title != study.Title {
		t.Errorf("title = %q, want %q", got.Title, study.Title)
	}
	if len(got.Criteria) != 2 {
		t.Fatalf("criteria count = %d, want 2", len(got.Criteria))
	}
	if got.Criteria[0].Priority != "high" {
		t.Errorf("criteria[0].priority = %q, want %q", got.Criteria[0].Priority, "high")
	}

	// Upsert replaces criteria in place.
	study.Criteria = study.Criteria[:1]
	if err := s.UpsertStudy(ctx, study); err != nil {
		t.Fatalf("UpsertStudy (update) failed: %v", err)
	}
	got, err = s.GetStudy(ctx, study.ID)
	if err != nil {
		t.Fatalf("GetStudy after update failed: %v", err)
	}
	if len(got.Criteria) != 1 {
		t.Errorf("criteria count after update = %d, want 1", len(got.Criteria))
	}

	studies, err := s.ListStudies(ctx)
	if err != nil {
		t.Fatalf("ListStudies failed: %v", err)
	}
	found := false
	for _, st := range studies {
		if st.ID == study.ID {
			found = true
		}
	}
	if !found {
		t.Error("ListStudies did not include the upserted study")
	}

	if err := s.DeleteStudy(ctx, study.ID); err != nil {
		t.Fatalf("DeleteStudy failed: %v", err)
	}
	if err := s.DeleteStudy(ctx, study.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteStudy on missing study = %v, want ErrNotFound", err)
	}
	if _, err := s.GetStudy(ctx, study.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStudy on deleted study = %v, want ErrNotFound", err)
	}
}

func TestInterviewOperations(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	iv := Interview{
		ParticipantID: "test-participant-1",
		SessionID:     "sess-1",
		StudyID:       "study-1",
		Status:        "In Progress",
		MessageCount:  2,
		StartedAt:     started,
	}
	conversation := []ConversationMessage{
		{ID: "agent-0", Type: "agent", Content: "Welcome", Timestamp: started.Format(time.RFC3339)},
		{ID: "user-1", Type: "user", Content: "Hello", Timestamp: started.Format(time.RFC3339)},
	}
	if err := s.SaveInterview(ctx, iv, conversation); err != nil {
		t.Fatalf("SaveInterview failed: %v", err)
	}
	defer s.DeleteInterview(ctx, iv.ParticipantID)

	// Second save for the same participant replaces the record.
	completed := started.Add(5 * time.Minute)
	reason := "completed"
	iv.Status = "Completed"
	iv.ExitReason = &reason
	iv.MessageCount = 3
	iv.CompletedAt = &completed
	conversation = append(conversation, ConversationMessage{
		ID: "agent-2", Type: "agent", Content: "Thank you", Timestamp: completed.Format(time.RFC3339),
	})
	if err := s.SaveInterview(ctx, iv, conversation); err != nil {
		t.Fatalf("SaveInterview (upsert) failed: %v", err)
	}

	if err := s.SaveEvaluation(ctx, iv.ParticipantID, map[string]any{
		"eligible": true,
		"score":    85,
	}); err != nil {
		t.Fatalf("SaveEvaluation failed: %v", err)
	}

	detail, err := s.GetInterview(ctx, iv.ParticipantID)
	if err != nil {
		t.Fatalf("GetInterview failed: %v", err)
	}
	if detail.Status != "Completed" {
		t.Errorf("status = %q, want %q", detail.Status, "Completed")
	}
	if detail.ExitReason == nil || *detail.ExitReason != "completed" {
		t.Errorf("exit_reason = %v, want %q", detail.ExitReason, "completed")
	}
	if detail.MessageCount != 3 {
		t.Errorf("message_count = %d, want 3", detail.MessageCount)
	}
	if len(detail.Conversation) != 3 {
		t.Errorf("conversation length = %d, want 3", len(detail.Conversation))
	}
	if len(detail.Evaluation) == 0 {
		t.Error("evaluation payload should be stored")
	}

	list, err := s.ListInterviews(ctx)
	if err != nil {
		t.Fatalf("ListInterviews failed: %v", err)
	}
	found := false
	for _, item := range list {
		if item.ParticipantID == iv.ParticipantID {
			found = true
		}
	}
	if !found {
		t.Error("ListInterviews did not include the saved interview")
	}

	if err := s.DeleteInterview(ctx, iv.ParticipantID); err != nil {
		t.Fatalf("DeleteInterview failed: %v", err)
	}
	if _, err := s.GetInterview(ctx, iv.ParticipantID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetInterview on deleted record = %v, want ErrNotFound", err)
	}
}

func TestAudioSettingsDefaults(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	// Defaults come back even before anything was saved.
	settings, err := s.GetAudioSettings(ctx)
	if err != nil {
		t.Fatalf("GetAudioSettings failed: %v", err)
	}
	if settings.Speed <= 0 {
		t.Errorf("speed = %v, want positive", settings.Speed)
	}

	if err := s.SaveAudioSettings(ctx, AudioSettings{
		OutputLanguage: "spanish",
		Voice:          "alloy",
		Speed:          1.25,
	}); err != nil {
		t.Fatalf("SaveAudioSettings failed: %v", err)
	}

	settings, err = s.GetAudioSettings(ctx)
	if err != nil {
		t.Fatalf("GetAudioSettings after save failed: %v", err)
	}
	if settings.OutputLanguage != "spanish" || settings.Voice != "alloy" || settings.Speed != 1.25 {
		t.Errorf("settings = %+v, want spanish/alloy/1.25", settings)
	}
}

func TestPushTokenOperations(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	token := "test-device-token-abc"
	if err := s.RegisterPushToken(ctx, token, "ios"); err != nil {
		t.Fatalf("RegisterPushToken failed: %v", err)
	}
	defer s.UnregisterPushToken(ctx, token)

	// Re-registering the same token must not duplicate it.
	if err := s.RegisterPushToken(ctx, token, "ios"); err != nil {
		t.Fatalf("RegisterPushToken (repeat) failed: %v", err)
	}

	tokens, err := s.ListPushTokens(ctx)
	if err != nil {
		t.Fatalf("ListPushTokens failed: %v", err)
	}
	count := 0
	for _, tk := range tokens {
		if tk.Token == token {
			count++
		}
	}
	if count != 1 {
		t.Errorf("token appears %d times, want 1", count)
	}

	if err := s.UnregisterPushToken(ctx, token); err != nil {
		t.Fatalf("UnregisterPushToken failed: %v", err)
	}
}

func TestMarkStaleInterviews(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	stale := Interview{
		ParticipantID: "test-stale-1",
		SessionID:     "sess-stale",
		StudyID:       "study-1",
		Status:        "In Progress",
		StartedAt:     old,
	}
	if err := s.SaveInterview(ctx, stale, nil); err != nil {
		t.Fatalf("SaveInterview failed: %v", err)
	}
	defer s.DeleteInterview(ctx, stale.ParticipantID)

	fresh := stale
	fresh.ParticipantID = "test-fresh-1"
	fresh.StartedAt = time.Now().UTC()
	if err := s.SaveInterview(ctx, fresh, nil); err != nil {
		t.Fatalf("SaveInterview failed: %v", err)
	}
	defer s.DeleteInterview(ctx, fresh.ParticipantID)

	ids, err := s.MarkStaleInterviews(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("MarkStaleInterviews failed: %v", err)
	}

	found := false
	for _, id := range ids {
		if id == fresh.ParticipantID {
			t.Error("fresh interview should not be marked stale")
		}
		if id == stale.ParticipantID {
			found = true
		}
	}
	if !found {
		t.Error("stale interview was not marked")
	}

	d, err := s.GetInterview(ctx, stale.ParticipantID)
	if err != nil {
		t.Fatalf("GetInterview failed: %v", err)
	}
	if d.Status != "Abandoned" {
		t.Errorf("Status = %q, want Abandoned", d.Status)
	}
	if d.ExitReason == nil || *d.ExitReason != "session_timeout" {
		t.Errorf("ExitReason = %v, want session_timeout", d.ExitReason)
	}
}
