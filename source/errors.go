package source

import "errors"

var (
	// ErrUnsupportedFormat is returned when a file cannot be parsed as audio.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrIO is returned when a file cannot be opened or read.
	ErrIO = errors.New("io error")
)

// DecodeError reports a failed load of the file at Path.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return "decode " + e.Path + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
