package classifier

import "errors"

// ErrInference marks a failure of a model backend, including outputs whose shape does
// not match the input batch. The batch boundary treats it as fatal.
var ErrInference = errors.New("inference failed")
