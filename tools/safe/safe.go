package safe

import (
	"fmt"
	"reflect"

	"PPRelay/logger"
	"PPRelay/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required dependencies during construction.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// Call runs f and converts a panic into an error carrying the panic value.
func Call(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
		}
	}()
	f()
	return nil
}

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(log *zap.Logger, name string, f func()) {
	go func() {
		if err := Call(f); err != nil {
			logger.Or(log).Error("[SafeGo] panic recovered",
				zap.String("task", name), zap.Error(err), zap.Stack("stack"))
		}
	}()
}
