package kvfs

import (
	"io/fs"
	"syscall"

	"github.com/pkg/errors"
)

// Code classifies a failed path operation. Codes are stable and intended for
// programmatic matching; messages are not.
type Code int

const (
	// CodeOK is the zero value returned by a successful Resolve.
	CodeOK Code = iota

	// CodeNotFound means a path did not resolve.
	CodeNotFound

	// CodeNotADirectory means resolution descended through a non-directory.
	CodeNotADirectory

	// CodeIsADirectory means a file operation hit a directory.
	CodeIsADirectory

	// CodeLoop means too many symlinks were followed.
	CodeLoop

	// CodeInvalid means the request can never succeed, such as removing the
	// root or moving a directory beneath itself.
	CodeInvalid
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeNotFound:
		return "NotFound"
	case CodeNotADirectory:
		return "NotADirectory"
	case CodeIsADirectory:
		return "IsADirectory"
	case CodeLoop:
		return "Loop"
	case CodeInvalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// errno returns the conventional error value for c.
func (c Code) errno() error {
	switch c {
	case CodeNotFound:
		return fs.ErrNotExist
	case CodeNotADirectory:
		return syscall.ENOTDIR
	case CodeIsADirectory:
		return syscall.EISDIR
	case CodeLoop:
		return syscall.ELOOP
	case CodeInvalid:
		return fs.ErrInvalid
	default:
		return nil
	}
}

// ErrNoRecord is returned by a Backend's Get when nothing is stored under
// the requested ID.
var ErrNoRecord = errors.New("kvfs: no record")

// PathError records the operation and path that failed together with a
// Code. Err is the io/fs or syscall error matching the code, so callers may
// also test with errors.Is(err, fs.ErrNotExist).
type PathError struct {
	Op   string
	Path string
	Code Code
	Err  error
}

func newPathError(op string, p Path, code Code) *PathError {
	return &PathError{Op: op, Path: p.String(), Code: code, Err: code.errno()}
}

func (e *PathError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Code.String() + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error { return e.Err }

// CodeOf returns the Code carried by err, CodeOK for nil, or -1 when err
// is not a *PathError.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var pathErr *PathError
	if errors.As(err, &pathErr) {
		return pathErr.Code
	}
	return -1
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}
