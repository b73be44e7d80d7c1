package task

import "catalog/repricer/internal/domain"

// ExportPartTask carries one finished output part to the spreadsheet writer.
type ExportPartTask struct {
	BatchID  string       `json:"batch_id"`
	Part     int          `json:"part"` // 1-based
	FileName string       `json:"file_name"`
	Headers  []string     `json:"headers"`
	Rows     []domain.Row `json:"rows"`
}

func (t *ExportPartTask) TaskType() string {
	return ExportPartType
}

func (t *ExportPartTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
