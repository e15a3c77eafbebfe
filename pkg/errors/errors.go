// Error wrappers which remember where they are created.
//
// Usage:
//
//	wrapped := xe.Wrap(err)
//
// `wrapped` knows the function, file and line of the call site.
// Reading a message of a chain of wrapped errors, replace
//
//	s/<-/\n/
//
// and it gives you "stacks" of where you marks.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

type ErrWithCaller struct {
	file     string
	line     int
	funcname string
	note     string
	err      error
}

func (e *ErrWithCaller) File() string {
	return e.file
}

func (e *ErrWithCaller) Line() int {
	return e.line
}

func (e *ErrWithCaller) Func() string {
	return e.funcname
}

func (e *ErrWithCaller) Error() string {
	if e.note == "" {
		return fmt.Sprintf(`@ %s "%s" l%d <- %s`, e.funcname, e.file, e.line, e.err)
	}
	return fmt.Sprintf(`@ %s "%s" l%d (%s) <- %s`, e.funcname, e.file, e.line, e.note, e.err)
}

func (e *ErrWithCaller) Unwrap() error {
	return e.err
}

// New creates an error with the caller location.
func New(text string) error {
	return mark("", errors.New(text), 1)
}

// Errorf is fmt.Errorf with the caller location.
func Errorf(format string, args ...any) error {
	return mark("", fmt.Errorf(format, args...), 1)
}

// Wrap marks err with the caller location. Wrap(nil) is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return mark("", err, 1)
}

// WrapAsOuter marks err with the location of the caller's caller, `depth` frames above.
func WrapAsOuter(err error, depth int) error {
	if err == nil {
		return nil
	}
	return mark("", err, depth+1)
}

func WrapWithNote(note string, err error) error {
	if err == nil {
		return nil
	}
	return mark(note, err, 1)
}

func mark(note string, err error, depth int) error {
	pc, file, line, ok := runtime.Caller(depth + 1)
	funcname := "(unknown func)"
	if !ok {
		file = "?"
		line = -1
	}
	if fn := runtime.FuncForPC(pc); fn != nil {
		funcname = fn.Name()
	}

	return &ErrWithCaller{
		funcname: funcname,
		file:     file,
		line:     line,
		note:     note,
		err:      err,
	}
}
