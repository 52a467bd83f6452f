package domain

import "time"

// User is the caller identity as resolved by the boundary layer.
// A zero ID means the caller is not authenticated.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Staff    bool   `json:"staff"`
}

// Room is a contest session joined by one or two users. Granted users and
// the answered-question set live in relation tables owned by the store.
type Room struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	StaffOnly bool   `json:"staffOnly"`
}

// Profile carries the per-user grade and level rating. The level is adjusted
// by contest outcomes and never drops below zero.
type Profile struct {
	UserID int64 `json:"userId"`
	Grade  int   `json:"grade"`
	Level  int   `json:"level"`
}

// Membership links a user to a room. InRoom is non-nil while the user is
// engaged in a contest room; it doubles as the exclusivity marker.
type Membership struct {
	ID       int64     `json:"id"`
	RoomID   int64     `json:"roomId"`
	UserID   int64     `json:"userId"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
	InRoom   *int64    `json:"inRoom,omitempty"`
}

// Question is immutable quiz content: one correct answer and three distractors.
type Question struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
	Choice1 string `json:"choice1"`
	Choice2 string `json:"choice2"`
	Choice3 string `json:"choice3"`
	Answer  string `json:"answer"`
}

// AnswerKey records the index of the correct choice within one shuffled
// presentation of a question. Keys are append-only; the id handed to the
// client is the only handle for judging that round.
type AnswerKey struct {
	ID          int64 `json:"id"`
	AnswerIndex int   `json:"answerIndex"`
}

// ContestScore is the per-user score for the current contest. At most one row
// exists per user; it is reset or incremented, never deleted.
type ContestScore struct {
	UserID int64 `json:"userId"`
	Score  int   `json:"score"`
}

// LearnRecord is one judged answer in a user's learning history.
type LearnRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	RecordID  int64     `json:"recordId"`
	Correct   bool      `json:"correct"`
	CreatedAt time.Time `json:"createdAt"`
}

// Verdicts returned when a contest is judged.
const (
	VerdictNone        = "-"
	VerdictWin         = "Win"
	VerdictLose        = "Lose"
	VerdictTie         = "Tie"
	VerdictUnknownUser = "UnknownUser"
)

// ContestEnded is the sentinel returned once a room has used up its draws.
const ContestEnded = "Contest End"

// PayloadDelimiter joins the fields of a question payload:
// choice#choice#choice#choice#content#recordID. The encoding assumes the
// delimiter never occurs inside question or choice text.
const PayloadDelimiter = "#"
