package task

import "catalog/repricer/internal/domain"

type RowChunkTask struct {
	BatchID    string       `json:"batch_id"`
	ChunkIndex int          `json:"chunk_index"` // zero based position of the chunk in the batch
	RowOffset  int          `json:"row_offset"`  // index of the first row in the source sheet
	Rows       []domain.Row `json:"rows"`
}

func (t *RowChunkTask) TaskType() string {
	return RowChunkType
}

func (t *RowChunkTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
