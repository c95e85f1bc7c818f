package scoring

import "errors"

// Sentinel kinds for scoring errors.
var (
	ErrNoExamples = errors.New("no training examples")
	ErrEncode     = errors.New("encode model failed")
	ErrDecode     = errors.New("decode model failed")
)
