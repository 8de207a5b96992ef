package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Handler holds metadata about a registered job handler.
type Handler struct {
	Fn         reflect.Value
	ArgsType   reflect.Type
	HasContext bool

	// Timeout bounds one execution when positive.
	Timeout time.Duration
}

// NewHandler creates a Handler from a function.
// The function must have signature: func(ctx context.Context, args T) error
// or func(ctx context.Context, args T) (R, error). The context is optional.
func NewHandler(fn any) (*Handler, error) {
	if fn == nil {
		return nil, errors.New("handler cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)
	if fnVal.Kind() != reflect.Func {
		return nil, errors.New("handler must be a function")
	}
	if fnVal.IsNil() {
		return nil, errors.New("handler function cannot be nil")
	}

	fnType := fnVal.Type()
	h := &Handler{Fn: fnVal}

	numIn := fnType.NumIn()
	if numIn < 1 || numIn > 2 {
		return nil, errors.New("handler must have 1-2 arguments")
	}

	argIdx := 0
	if fnType.In(0).Implements(contextType) {
		h.HasContext = true
		argIdx = 1
	}
	if argIdx < numIn {
		h.ArgsType = fnType.In(argIdx)
	}

	switch fnType.NumOut() {
	case 1:
		if !fnType.Out(0).Implements(errorType) {
			return nil, errors.New("handler must return error")
		}
	case 2:
		if !fnType.Out(1).Implements(errorType) {
			return nil, errors.New("handler must return (T, error)")
		}
	default:
		return nil, errors.New("handler must return error or (T, error)")
	}

	return h, nil
}

// Execute decodes the stored JSON arguments and runs the handler.
func (h *Handler) Execute(ctx context.Context, argsJSON []byte) error {
	if !h.Fn.IsValid() || h.Fn.IsNil() {
		return errors.New("handler function is nil or invalid")
	}

	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	var in []reflect.Value
	if h.HasContext {
		in = append(in, reflect.ValueOf(ctx))
	}
	if h.ArgsType != nil {
		argVal := reflect.New(h.ArgsType)
		if err := json.Unmarshal(argsJSON, argVal.Interface()); err != nil {
			return fmt.Errorf("%w: unmarshal args: %v", core.ErrMalformedRecord, err)
		}
		in = append(in, argVal.Elem())
	}

	out := h.Fn.Call(in)

	last := out[len(out)-1]
	if !last.IsNil() {
		return last.Interface().(error)
	}
	return nil
}
