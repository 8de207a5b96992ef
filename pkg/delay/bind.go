package delay

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/jdziat/simple-deferred-calls/pkg/codec"
	"github.com/jdziat/simple-deferred-calls/pkg/core"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
	dateType    = reflect.TypeOf(codec.Date{})
)

// bindArgs builds the argument list for a method of type mt.
//
// A leading context.Context receives ctx. Positional values fill the
// following parameters in order. Keyword arguments are decoded into the last
// parameter, which must be a struct, a pointer to one or a string-keyed map.
// When a call carries no keywords and only that last parameter is left
// over, it gets its zero value.
func bindArgs(ctx context.Context, mt reflect.Type, rec codec.Record) ([]reflect.Value, error) {
	in := make([]reflect.Value, 0, mt.NumIn())
	first := 0
	if mt.NumIn() > 0 && mt.In(0) == contextType {
		in = append(in, reflect.ValueOf(&ctx).Elem())
		first = 1
	}

	end := mt.NumIn()
	last := end - 1
	var kwParam reflect.Type

	switch {
	case rec.HasKwargs():
		if last < first || mt.IsVariadic() || !isKwargsParam(mt.In(last)) {
			return nil, fmt.Errorf("%w: method takes no keyword arguments", core.ErrArgumentMismatch)
		}
		kwParam = mt.In(last)
		end = last
	case !mt.IsVariadic() && last >= first && isKwargsParam(mt.In(last)) && len(rec.Args) == last-first:
		kwParam = mt.In(last)
		end = last
	}

	positional := end - first
	if mt.IsVariadic() {
		if len(rec.Args) < positional-1 {
			return nil, fmt.Errorf("%w: got %d arguments, want at least %d",
				core.ErrArgumentMismatch, len(rec.Args), positional-1)
		}
	} else if len(rec.Args) != positional {
		return nil, fmt.Errorf("%w: got %d arguments, want %d",
			core.ErrArgumentMismatch, len(rec.Args), positional)
	}

	for i, arg := range rec.Args {
		var pt reflect.Type
		if mt.IsVariadic() && first+i >= end-1 {
			pt = mt.In(end - 1).Elem()
		} else {
			pt = mt.In(first + i)
		}
		v, err := convert(arg, pt, false)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d: %v", core.ErrArgumentMismatch, i+1, err)
		}
		in = append(in, v)
	}

	if kwParam != nil {
		if !rec.HasKwargs() {
			in = append(in, reflect.Zero(kwParam))
			return in, nil
		}
		v, err := convert(map[string]any(rec.Kwargs), kwParam, true)
		if err != nil {
			return nil, fmt.Errorf("%w: keyword arguments: %v", core.ErrArgumentMismatch, err)
		}
		in = append(in, v)
	}
	return in, nil
}

// isKwargsParam reports whether t can receive keyword arguments.
func isKwargsParam(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Map:
		return t.Key().Kind() == reflect.String
	case reflect.Pointer:
		return t.Elem().Kind() == reflect.Struct && !isTimeLike(t.Elem())
	case reflect.Struct:
		return !isTimeLike(t)
	}
	return false
}

func isTimeLike(t reflect.Type) bool {
	return t == timeType || t == dateType
}

// convert turns a decoded value into a value of type t. Strict decoding
// rejects map keys that match no struct field.
func convert(v any, t reflect.Type, strict bool) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("nil for %s", t)
	}

	switch x := v.(type) {
	case codec.Date:
		if t == timeType {
			return reflect.ValueOf(x.Time()), nil
		}
	case time.Time:
		if t == dateType {
			return reflect.ValueOf(codec.DateOf(x)), nil
		}
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if out, ok := convertScalar(rv, t); ok {
		return out, nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem, err := convert(v, t.Elem(), strict)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		return p, nil
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		return decodeInto(v, t, strict)
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

// convertScalar handles lossless numeric conversions and string-like
// conversions such as codec.Symbol to string.
func convertScalar(rv reflect.Value, t reflect.Type) (reflect.Value, bool) {
	out := reflect.New(t).Elem()
	switch rv.Kind() {
	case reflect.String:
		if t.Kind() == reflect.String {
			out.SetString(rv.String())
			return out, true
		}
	case reflect.Bool:
		if t.Kind() == reflect.Bool {
			out.SetBool(rv.Bool())
			return out, true
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return setInt(out, rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		switch {
		case isUint(t.Kind()):
			if out.OverflowUint(u) {
				return reflect.Value{}, false
			}
			out.SetUint(u)
			return out, true
		case u <= math.MaxInt64:
			return setInt(out, int64(u))
		}
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		switch {
		case isFloat(t.Kind()):
			out.SetFloat(f)
			return out, true
		case f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64:
			return setInt(out, int64(f))
		}
	}
	return reflect.Value{}, false
}

func setInt(out reflect.Value, n int64) (reflect.Value, bool) {
	switch k := out.Kind(); {
	case isInt(k):
		if out.OverflowInt(n) {
			return reflect.Value{}, false
		}
		out.SetInt(n)
	case isUint(k):
		if n < 0 || out.OverflowUint(uint64(n)) {
			return reflect.Value{}, false
		}
		out.SetUint(uint64(n))
	case isFloat(k):
		out.SetFloat(float64(n))
	default:
		return reflect.Value{}, false
	}
	return out, true
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// decodeInto decodes composite values with mapstructure. Struct fields match
// keys case-insensitively with underscores ignored, so dry_run fills DryRun.
func decodeInto(v any, t reflect.Type, strict bool) (reflect.Value, error) {
	out := reflect.New(t)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out.Interface(),
		ErrorUnused: strict,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			codecHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		MatchName: func(mapKey, fieldName string) bool {
			return strings.EqualFold(strings.ReplaceAll(mapKey, "_", ""), strings.ReplaceAll(fieldName, "_", ""))
		},
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if err := dec.Decode(v); err != nil {
		return reflect.Value{}, err
	}
	return out.Elem(), nil
}

// codecHook converts codec values mapstructure does not know about.
func codecHook(from, to reflect.Type, data any) (any, error) {
	switch x := data.(type) {
	case codec.Date:
		if to == timeType {
			return x.Time(), nil
		}
	case time.Time:
		if to == dateType {
			return codec.DateOf(x), nil
		}
		if to == timeType {
			return x, nil
		}
	case codec.Symbol:
		if to.Kind() == reflect.String {
			return string(x), nil
		}
	}
	return data, nil
}
