package workqueue

// Metrics is a point-in-time summary of queue health. ErrorRate is the
// percentage of terminal attempts that failed at least once.
type Metrics struct {
	Pending             int     `json:"pending"`
	Processing          int     `json:"processing"`
	Completed           int     `json:"completed"`
	Failed              int     `json:"failed"`
	DeadLetter          int     `json:"deadLetter"`
	AvgProcessingTimeMs float64 `json:"avgProcessingTimeMs"`
	ErrorRate           float64 `json:"errorRate"`
}
