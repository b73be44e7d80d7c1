package task

import "catalog/repricer/internal/domain"

type RowChunkRetryTask struct {
	BatchID    string       `json:"batch_id"`
	ChunkIndex int          `json:"chunk_index"`
	RowOffset  int          `json:"row_offset"`
	Rows       []domain.Row `json:"rows"`
	RetryCount int          `json:"retry_count"` // Number of times this chunk has been retried
	Error      string       `json:"error"`       // Error message from the last failure
}

func (t *RowChunkRetryTask) TaskType() string {
	return RowChunkRetryType
}

func (t *RowChunkRetryTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
