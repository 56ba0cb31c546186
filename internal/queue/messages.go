package queue

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator"
)

// AnalyzeBookMsg starts the analysis of one book stored under FileKey.
type AnalyzeBookMsg struct {
	RunID    string `json:"run_id" validate:"required"`
	BookID   string `json:"book_id" validate:"required"`
	FileKey  string `json:"file_key" validate:"required"`
	Language string `json:"language,omitempty"`
}

// ResumeRunMsg continues a paused, interrupted or failed run.
type ResumeRunMsg struct {
	RunID   string `json:"run_id" validate:"required"`
	Message string `json:"message,omitempty"`
}

var validate = validator.New()

// Decode unmarshals and validates a message body.
func Decode[T any](body []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("decode message: %w", err)
	}
	if err := validate.Struct(msg); err != nil {
		return msg, fmt.Errorf("invalid message: %w", err)
	}
	return msg, nil
}
