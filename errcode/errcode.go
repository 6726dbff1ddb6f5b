package errcode

// Code is a stable, caller-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK              Code = "ok"
	NotFound        Code = "not_found"
	Busy            Code = "busy"
	InvalidArgument Code = "invalid_argument"
	Internal        Code = "internal"
	Unsupported     Code = "unsupported"
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.Busy) match a wrapped *E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap attaches an operation name and message to a code.
func Wrap(c Code, op, msg string) error {
	return &E{C: c, Op: op, Msg: msg}
}

// Of extracts a Code from an error, defaulting to Internal.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	for err != nil {
		if c, ok := err.(Code); ok {
			return c
		}
		type coder interface{ Code() Code }
		if x, ok := err.(coder); ok {
			return x.Code()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return Internal
}
