package errs

// Taxonomy codes. InvalidArgument/NotFound/Forbidden are terminal and never
// retried; Conflict surfaces a lost concurrent-creation race; Transient means
// the backing store or network is unavailable and the caller may retry.
const (
	CodeInvalidArgument = 1001
	CodeNotFound        = 1002
	CodeForbidden       = 1003
	CodeConflict        = 1004
	CodeTransient       = 1005
	CodeUnauthorized    = 1006
	CodeInternal        = 1500
)

var (
	ErrInvalidArgument = NewCodeError(CodeInvalidArgument, "invalid argument")
	ErrNotFound        = NewCodeError(CodeNotFound, "not found")
	ErrForbidden       = NewCodeError(CodeForbidden, "forbidden")
	ErrConflict        = NewCodeError(CodeConflict, "conflict")
	ErrTransient       = NewCodeError(CodeTransient, "temporarily unavailable")
	ErrUnauthorized    = NewCodeError(CodeUnauthorized, "unauthorized")
	ErrInternal        = NewCodeError(CodeInternal, "internal error")
)
