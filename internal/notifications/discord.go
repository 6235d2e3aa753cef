package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Discord is a simple Discord webhook notifier.
type Discord struct {
	webhookURL string
	logger     *log.Logger
	client     *http.Client
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, logger *log.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d.webhookURL != ""
}

// discordMessage is the payload for Discord webhook.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// send posts a message to Discord webhook asynchronously.
// Errors are logged but don't affect caller.
func (d *Discord) send(ctx context.Context, msg discordMessage) {
	if !d.Enabled() {
		return
	}

	go func() {
		body, err := json.Marshal(msg)
		if err != nil {
			d.logger.Printf("discord: failed to marshal message: %v", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", d.webhookURL, bytes.NewReader(body))
		if err != nil {
			d.logger.Printf("discord: failed to create request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Printf("discord: failed to send webhook: %v", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			d.logger.Printf("discord: webhook returned status %d", resp.StatusCode)
		}
	}()
}

// NotifyInterviewCompleted sends a notification when a screening finishes.
func (d *Discord) NotifyInterviewCompleted(ctx context.Context, participantID, studyTitle string, eligible bool, score float64) {
	color := 0x00FF00 // Green
	outcome := "Eligible"
	if !eligible {
		color = 0xFFA500 // Orange
		outcome = "Not eligible"
	}
	msg := discordMessage{
		Embeds: []discordEmbed{{
			Title:       "Screening completed",
			Description: fmt.Sprintf("Participant `%s` finished the screening for **%s**", participantID, studyTitle),
			Color:       color,
			Fields: []embedField{
				{Name: "Outcome", Value: outcome, Inline: true},
				{Name: "Score", Value: fmt.Sprintf("%.0f%%", score), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}

// NotifyInterviewAbandoned sends a notification when a participant leaves
// before finishing.
func (d *Discord) NotifyInterviewAbandoned(ctx context.Context, participantID, studyTitle, exitReason string) {
	msg := discordMessage{
		Embeds: []discordEmbed{{
			Title:       "Screening not finished",
			Description: fmt.Sprintf("Participant `%s` left the screening for **%s**", participantID, studyTitle),
			Color:       0xFF0000, // Red
			Fields: []embedField{
				{Name: "Exit reason", Value: exitReason, Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}
	d.send(ctx, msg)
}
