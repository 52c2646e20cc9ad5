package errors

import (
	"errors"
	"fmt"

	"github.com/mgtv-tech/redis-ferry/pkg/util"
)

// Failure classes of the migration engine. Endpoint-local classes
// (ErrConnect, ErrProtocol, ErrIo) are handled by the reconnect supervisor;
// ErrAuth and ErrConfig abort the run; ErrReply is counted and skipped.
var (
	ErrConnect  = errors.New("connect error")
	ErrAuth     = errors.New("auth error")
	ErrProtocol = errors.New("protocol error")
	ErrReply    = errors.New("reply error")
	ErrConfig   = errors.New("config error")
	ErrIo       = errors.New("io error")
)

// IsFatal reports whether err belongs to a class that must fail the run
// rather than a single endpoint or command.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrConfig)
}

type TracedError struct {
	Stack util.FuncStack
	Cause error
}

func (e *TracedError) Error() string {
	return fmt.Sprintf("err(%s), stack(%s)", e.Cause.Error(), e.Stack.StringOneLine())
}

func (e *TracedError) Unwrap() error {
	return e.Cause
}

func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &TracedError{
		Stack: util.GetCallerStack(1, 3),
		Cause: err,
	}
}

func Errorf(f string, args ...interface{}) error {
	return WithStack(fmt.Errorf(f, args...))
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}
