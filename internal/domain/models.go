package domain

import "time"

// AttemptStatus is the closed set of attempt lifecycle states.
type AttemptStatus string

const (
	// StatusInProgress is the sole initial state of an attempt.
	StatusInProgress AttemptStatus = "in_progress"
	// StatusSubmitted is terminal; no transition leaves it.
	StatusSubmitted AttemptStatus = "submitted"
)

// Option is a possible answer for a question. Correct only exists on
// content-store reads; it is never serialized toward clients.
type Option struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question as stored in the content store.
type Question struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Options    []Option `json:"options"`
	Difficulty string   `json:"difficulty,omitempty"`
	Domain     string   `json:"domain,omitempty"`
}

// Paper is an ordered set of questions with an optional time limit.
// The attempt engine reads papers but never mutates them.
type Paper struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Subject     string     `json:"subject,omitempty"`
	Price       float64    `json:"price,omitempty"`
	Questions   []Question `json:"questions"`
	DurationSec int        `json:"durationSec,omitempty"` // 0 means untimed
}

// OptionSnapshot carries only the display text of an option; the correctness
// flag is deliberately absent.
type OptionSnapshot struct {
	Text string `json:"text"`
}

// QuestionSnapshot is the immutable copy of a question taken at attempt
// start. CorrectIndex is the zero-based position of the first option marked
// correct, or -1 when none is. Later edits to the live question have no
// effect on a snapshot.
type QuestionSnapshot struct {
	QuestionID   string           `json:"questionId"`
	Text         string           `json:"text"`
	Options      []OptionSnapshot `json:"options"`
	CorrectIndex int              `json:"correctIndex"`
}

// AnswerRecord is one user's latest selection for one snapshot question.
// A nil SelectedIndex means "unanswered" (an explicit clear).
type AnswerRecord struct {
	QuestionID    string    `json:"questionId"`
	SelectedIndex *int      `json:"selectedIndex"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ScoringConfig is captured once at attempt start so later changes to
// defaults never retroactively alter in-flight attempts.
type ScoringConfig struct {
	MarksPerCorrect float64 `json:"marksPerCorrect"`
	NegativeMark    float64 `json:"negativeMark"`
}

// Attempt is the central aggregate: one user's timed run through one paper.
type Attempt struct {
	ID             string             `json:"id"`
	UserID         string             `json:"userId"`
	PaperID        string             `json:"paperId"`
	Status         AttemptStatus      `json:"status"`
	Snapshot       []QuestionSnapshot `json:"snapshot"`
	Answers        []AnswerRecord     `json:"answers"`
	TotalQuestions int                `json:"totalQuestions"`
	Scoring        ScoringConfig      `json:"scoring"`
	TimeLimitSec   int                `json:"timeLimitSec"` // copied from the paper at start; 0 means untimed
	Score          float64            `json:"score"`
	StartedAt      time.Time          `json:"startedAt"`
	SubmittedAt    *time.Time         `json:"submittedAt,omitempty"`
	DurationSec    *int               `json:"durationSec,omitempty"`
}

// SanitizedQuestion is the client-facing question shape while an attempt is
// in progress: option text only, positions implied by slice index.
type SanitizedQuestion struct {
	QuestionID string   `json:"questionId"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
}

// StartResult is returned by the Start transition.
type StartResult struct {
	AttemptID      string              `json:"attemptId"`
	PaperID        string              `json:"paperId"`
	TotalQuestions int                 `json:"totalQuestions"`
	Questions      []SanitizedQuestion `json:"questions"`
	DurationSec    *int                `json:"durationSec"`
	RemainingSec   *int                `json:"remainingSec"`
	StartedAt      time.Time           `json:"startedAt"`
}

// Ack acknowledges an answer write without leaking correctness.
type Ack struct {
	AttemptID string `json:"attemptId"`
}

// BreakdownItem is the per-question review row revealed after submission.
type BreakdownItem struct {
	QuestionID    string `json:"questionId"`
	SelectedIndex *int   `json:"selectedIndex"`
	CorrectIndex  int    `json:"correctIndex"`
	Correct       bool   `json:"correct"`
}

// ScoreBreakdown is the result of a successful Submit.
type ScoreBreakdown struct {
	AttemptID      string          `json:"attemptId"`
	Score          float64         `json:"score"`
	TotalQuestions int             `json:"totalQuestions"`
	Percent        float64         `json:"percent"`
	Breakdown      []BreakdownItem `json:"breakdown"`
}

// AttemptView is the status-dependent read model returned by Get.
// In-progress attempts carry Questions/Answers/RemainingSec and never a
// breakdown; submitted attempts carry the full breakdown and final figures.
type AttemptView struct {
	AttemptID      string              `json:"attemptId"`
	PaperID        string              `json:"paperId"`
	Status         AttemptStatus       `json:"status"`
	TotalQuestions int                 `json:"totalQuestions"`
	StartedAt      time.Time           `json:"startedAt"`
	Questions      []SanitizedQuestion `json:"questions,omitempty"`
	Answers        []AnswerRecord      `json:"answers,omitempty"`
	RemainingSec   *int                `json:"remainingSec,omitempty"`
	Score          *float64            `json:"score,omitempty"`
	Percent        *float64            `json:"percent,omitempty"`
	SubmittedAt    *time.Time          `json:"submittedAt,omitempty"`
	DurationSec    *int                `json:"durationSec,omitempty"`
	Breakdown      []BreakdownItem     `json:"breakdown,omitempty"`
}

// AttemptSummary is the list-view row for a user's attempt history.
type AttemptSummary struct {
	AttemptID   string        `json:"attemptId"`
	PaperID     string        `json:"paperId"`
	Status      AttemptStatus `json:"status"`
	Score       *float64      `json:"score,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	SubmittedAt *time.Time    `json:"submittedAt,omitempty"`
}

// Finalization is the patch applied by the Submit transition. Repositories
// apply it only while the attempt is still in progress, atomically with that
// status check.
type Finalization struct {
	Score       float64
	SubmittedAt time.Time
	DurationSec int
}
