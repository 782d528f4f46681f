package api

// Judge result statuses.
const (
	StatusAccepted = "accepted"
	StatusSkipped  = "skipped"
)

// JudgeResult is what a worker reports for an acknowledged judge request.
type JudgeResult struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}
