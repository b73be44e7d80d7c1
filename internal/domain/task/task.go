package task

import "encoding/json"

type Task interface {
	TaskType() string
	TaskValue() ([]byte, error)
}

// DefaultTaskValue provides a common implementation for TaskValue
func DefaultTaskValue(task interface{}) ([]byte, error) {
	return json.Marshal(task)
}

func UnmarshalTask[T Task](task []byte) (T, error) {
	var t T
	err := json.Unmarshal(task, &t)
	return t, err
}

// Stream task type names
const (
	RowChunkType      = "RowChunkTask"
	RowChunkRetryType = "RowChunkRetryTask"
	ExportPartType    = "ExportPartTask"
)

// Types lists every task type that owns a stream
var Types = []string{RowChunkType, RowChunkRetryType, ExportPartType}
