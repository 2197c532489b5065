package client

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LectureStatus is the server-side processing state of a lecture.
type LectureStatus string

const (
	StatusPending    LectureStatus = "pending"
	StatusProcessing LectureStatus = "processing"
	StatusDone       LectureStatus = "done"
	StatusError      LectureStatus = "error"
)

// Waiting reports whether the lecture has not been processed yet.
func (s LectureStatus) Waiting() bool {
	return s == StatusPending || s == StatusProcessing
}

// Terminal reports whether processing has finished, successfully or not.
func (s LectureStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Lecture is an uploaded lecture recording.
// Timestamps stay strings because the backend omits the zone offset.
type Lecture struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Subject      *string       `json:"subject,omitempty"`
	VideoURL     *string       `json:"video_url,omitempty"`
	Status       LectureStatus `json:"status"`
	Progress     int           `json:"progress"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	CreatedAt    string        `json:"created_at,omitempty"`
	Analysis     *Analysis     `json:"analysis,omitempty"`
}

// Analysis is the computed result for a processed lecture.
type Analysis struct {
	ID            string          `json:"id,omitempty"`
	LectureID     string          `json:"lecture_id"`
	AvgAttention  float64         `json:"avg_attention"`
	AvgEngagement float64         `json:"avg_engagement"`
	Score         float64         `json:"score"`
	MetricsPath   string          `json:"metrics_path,omitempty"`
	SummaryJSON   json.RawMessage `json:"summary_json,omitempty"`
	CreatedAt     string          `json:"created_at,omitempty"`
}

// AnalysisSummary is the decoded summary_json document.
type AnalysisSummary struct {
	FramesAnalyzed int                `json:"frames_analyzed"`
	FacesTotal     int                `json:"faces_total"`
	AvgAttention   float64            `json:"avg_attention"`
	AvgEngagement  float64            `json:"avg_engagement"`
	Score          float64            `json:"score"`
	EmotionHist    map[string]float64 `json:"emotion_hist,omitempty"`
	TopPeaks       []Highlight        `json:"top_peaks,omitempty"`
	TopDips        []Highlight        `json:"top_dips,omitempty"`
	Suggestions    []string           `json:"suggestions,omitempty"`
}

// Highlight is a notable window of the engagement timeline.
type Highlight struct {
	TsSec           float64 `json:"ts_sec"`
	WindowStartSec  float64 `json:"window_start_sec"`
	WindowEndSec    float64 `json:"window_end_sec"`
	AttentionRatio  float64 `json:"attention_ratio"`
	EngagementRatio float64 `json:"engagement_ratio"`
	Label           string  `json:"label,omitempty"`
}

// Summary decodes SummaryJSON. The backend sends either an object or a
// JSON-encoded string holding the object. Returns nil when absent.
func (a *Analysis) Summary() (*AnalysisSummary, error) {
	raw := bytes.TrimSpace(a.SummaryJSON)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("failed to decode summary string: %w", err)
		}
		if inner == "" {
			return nil, nil
		}
		raw = []byte(inner)
	}
	var summary AnalysisSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	return &summary, nil
}

// TokenResponse is returned by the sign-in and refresh endpoints.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// RegisterRequest is the sign-up payload.
type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role,omitempty"`
}

// User is a registered account.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}
