package httperr

import "errors"

// BadRequestError marks input the caller must fix. Code is the stable
// envelope code; it defaults to invalid_request.
type BadRequestError struct {
	code string
	msg  string
}

func (e *BadRequestError) Error() string { return e.msg }

func (e *BadRequestError) Code() string {
	if e.code == "" {
		return "invalid_request"
	}
	return e.code
}

func NewBadRequest(msg string) error { return &BadRequestError{msg: msg} }

func NewBadRequestCode(code string, msg string) error {
	return &BadRequestError{code: code, msg: msg}
}

func IsBadRequest(err error) bool {
	_, ok := errors.AsType[*BadRequestError](err)
	return ok
}

// CodeOf returns the envelope code of a bad request, or "" for other errors.
func CodeOf(err error) string {
	e, ok := errors.AsType[*BadRequestError](err)
	if !ok {
		return ""
	}
	return e.Code()
}
