package flow

import "errors"

// ErrInvalidInput marks requests the engine refuses to process: empty or
// unordered reading sequences, mixed partitions and malformed time ranges.
// Too few readings for a window is not an error; see WindowInsufficientData.
var ErrInvalidInput = errors.New("invalid input")
