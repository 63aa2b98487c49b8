package workqueue

// Status is the processing state of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeadLetter Status = "dead_letter"
)

// Item is a unit of work in the queue. Key identifies the originating
// sender, SourceID is the upstream event id the work was derived from.
type Item struct {
	ID            string `json:"id"`
	Key           string `json:"key"`
	Body          string `json:"body"`
	Label         string `json:"label,omitempty"`
	SourceID      string `json:"sourceId"`
	Status        Status `json:"status"`
	RetryCount    int    `json:"retryCount"`
	MaxRetries    int    `json:"maxRetries"`
	CreatedAtMs   int64  `json:"createdAtMs"`
	ScheduledAtMs int64  `json:"scheduledAtMs"`
	Error         string `json:"error,omitempty"`
}
