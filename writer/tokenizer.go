package writer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// tokenEstimator wraps a tiktoken encoding for the writer's pre-flight
// prompt-size check, adapted from the tokenizer helper used elsewhere in the
// corpus: only the estimate is needed here, not encode/decode round trips.
type tokenEstimator struct {
	enc *tiktoken.Tiktoken
}

func newTokenEstimator(encoding string) (*tokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("writer: load tokenizer %q: %w", encoding, err)
	}
	return &tokenEstimator{enc: enc}, nil
}

func (t *tokenEstimator) Estimate(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
