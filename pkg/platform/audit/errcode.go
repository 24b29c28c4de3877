package audit

import "errors"

// StatusCoder is implemented by errors that carry a response code.
type StatusCoder interface {
	StatusCode() int
}

// ErrorCode returns the code carried by err, or DefaultErrorCode.
func ErrorCode(err error) int {
	var coder StatusCoder
	if errors.As(err, &coder) {
		if code := coder.StatusCode(); code > 0 {
			return code
		}
	}
	return DefaultErrorCode
}
