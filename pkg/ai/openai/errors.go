package openai

import (
	"errors"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"

	"github.com/openai/openai-go/v3"
)

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ai.NewError(op, ai.KindForStatus(apiErr.StatusCode), err)
	}
	return ai.Classify(op, err)
}
