// Package costs provides cost estimation for voice AI provider usage.
package costs

import (
	"os"
	"strconv"
)

// Pricing constants (in cents per unit for precision).
// These are based on 2026 market rates and can be overridden via environment variables.
var (
	// DeepgramCentsPerMinute is the cost per minute for Deepgram Nova-2 prerecorded STT.
	// Default: $0.0043/min = 0.43 cents/min
	DeepgramCentsPerMinute = getEnvFloat("COST_DEEPGRAM_CENTS_PER_MIN", 0.43)

	// OpenAICentsPerThousandInputTokens is the cost per 1K input tokens for GPT-4o-mini.
	// Default: $0.15/1M = $0.00015/1K = 0.015 cents/1K tokens
	OpenAICentsPerThousandInputTokens = getEnvFloat("COST_OPENAI_INPUT_CENTS_PER_1K", 0.015)

	// OpenAICentsPerThousandOutputTokens is the cost per 1K output tokens for GPT-4o-mini.
	// Default: $0.60/1M = $0.0006/1K = 0.06 cents/1K tokens
	OpenAICentsPerThousandOutputTokens = getEnvFloat("COST_OPENAI_OUTPUT_CENTS_PER_1K", 0.06)

	// ElevenLabsCentsPerThousandChars is the cost per 1K characters for ElevenLabs Flash TTS.
	// Default: $0.10/1K chars = 10 cents/1K chars
	ElevenLabsCentsPerThousandChars = getEnvFloat("COST_ELEVENLABS_CENTS_PER_1K_CHARS", 10.0)
)

// InterviewMetrics contains the raw usage metrics from one interview session.
type InterviewMetrics struct {
	STTDurationSeconds int // Audio seconds sent to STT
	LLMInputTokens     int // Tokens sent to the classifier
	LLMOutputTokens    int // Tokens received from the classifier
	TTSCharacters      int // Characters synthesized
}

// InterviewCosts contains the calculated costs for an interview in cents.
type InterviewCosts struct {
	STTCostCents   int `json:"stt_cost_cents"`
	LLMCostCents   int `json:"llm_cost_cents"`
	TTSCostCents   int `json:"tts_cost_cents"`
	TotalCostCents int `json:"total_cost_cents"`
}

// CalculateInterviewCosts computes the provider costs for one interview
// based on usage metrics.
func CalculateInterviewCosts(m InterviewMetrics) InterviewCosts {
	sttMinutes := float64(m.STTDurationSeconds) / 60.0
	sttCents := sttMinutes * DeepgramCentsPerMinute

	llmInputCents := (float64(m.LLMInputTokens) / 1000.0) * OpenAICentsPerThousandInputTokens
	llmOutputCents := (float64(m.LLMOutputTokens) / 1000.0) * OpenAICentsPerThousandOutputTokens
	llmCents := llmInputCents + llmOutputCents

	ttsCents := (float64(m.TTSCharacters) / 1000.0) * ElevenLabsCentsPerThousandChars

	costs := InterviewCosts{
		STTCostCents: roundToInt(sttCents),
		LLMCostCents: roundToInt(llmCents),
		TTSCostCents: roundToInt(ttsCents),
	}
	costs.TotalCostCents = costs.STTCostCents + costs.LLMCostCents + costs.TTSCostCents

	return costs
}

// EstimateTokens approximates the token count of a text for cost purposes.
// Uses the rough four-characters-per-token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
