package chat

import "time"

// Record persists one question/answer pair for audit/debug. The
// orchestration core writes these fire-and-forget and never reads them
// back for decision-making.
type Record struct {
	ID        int64     `json:"id"`
	UserQuery string    `json:"user_query"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}
