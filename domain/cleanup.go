package domain

// CleanupJob lists tasks left behind by a column delete that could not be
// compensated. The janitor deletes them.
type CleanupJob struct {
	ColumnID   string   `json:"columnId"`
	TaskIDs    []string `json:"taskIds"`
	EnqueuedAt int64    `json:"enqueuedAt"`
}

// CleanupEnvelope wraps a job with the user owning the documents.
type CleanupEnvelope struct {
	UserID string     `json:"userId"`
	Job    CleanupJob `json:"job"`
}
