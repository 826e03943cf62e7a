package tool

import (
	"context"
	"encoding"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/casualjim/loom/pkg/reflectx"
	"github.com/casualjim/loom/pkg/slogx"
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Call invokes the function with a JSON object of named arguments and renders the result as text.
func (td Definition) Call(ctx context.Context, arguments string) (string, error) {
	fn := reflect.ValueOf(td.Function)
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return "", fmt.Errorf("tool %s has no function", td.Name)
	}
	args, err := td.buildArgList(ctx, arguments, fn.Type())
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", td.Name, err)
	}
	return callFunction(fn, args)
}

func (td Definition) buildArgList(ctx context.Context, arguments string, typ reflect.Type) ([]reflect.Value, error) {
	if arguments == "" {
		arguments = "{}"
	}
	if !gjson.Valid(arguments) {
		return nil, fmt.Errorf("arguments are not valid JSON: %s", arguments)
	}
	parsed := gjson.Parse(arguments)

	callArgs := make([]reflect.Value, typ.NumIn())
	for i := range callArgs {
		if reflectx.IsInterface[context.Context](typ.In(i)) {
			callArgs[i] = reflect.ValueOf(ctx)
		}
	}

	for i, pos := range parameters(typ) {
		paramType := typ.In(pos)
		val := parsed.Get(td.paramName(i))
		if !val.Exists() {
			callArgs[pos] = reflect.Zero(paramType)
			continue
		}
		v, err := convertArg(val, paramType)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", td.paramName(i), err)
		}
		callArgs[pos] = v
	}
	return callArgs, nil
}

func convertArg(val gjson.Result, paramType reflect.Type) (reflect.Value, error) {
	if raw := val.Value(); raw != nil {
		rv := reflect.ValueOf(raw)
		if rv.Type().ConvertibleTo(paramType) && rv.Kind() != reflect.Map && rv.Kind() != reflect.Slice {
			if rv.Kind() == reflect.Float64 {
				switch paramType.Kind() {
				case reflect.String:
					return reflect.ValueOf(val.Raw).Convert(paramType), nil
				case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
					reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
					return convertInteger(val, paramType)
				}
			}
			return rv.Convert(paramType), nil
		}
	}
	target := reflect.New(paramType)
	if err := json.Unmarshal([]byte(val.Raw), target.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return target.Elem(), nil
}

// convertInteger rejects fractions and values out of range instead of truncating them.
func convertInteger(val gjson.Result, paramType reflect.Type) (reflect.Value, error) {
	f := val.Float()
	if f != math.Trunc(f) {
		return reflect.Value{}, fmt.Errorf("%s is not an integer", val.Raw)
	}
	out := reflect.New(paramType).Elem()
	switch paramType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := val.Int()
		if float64(n) != f || out.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("%s overflows %s", val.Raw, paramType)
		}
		out.SetInt(n)
	default:
		n := val.Uint()
		if f < 0 || float64(n) != f || out.OverflowUint(n) {
			return reflect.Value{}, fmt.Errorf("%s overflows %s", val.Raw, paramType)
		}
		out.SetUint(n)
	}
	return out, nil
}

func callFunction(fn reflect.Value, args []reflect.Value) (string, error) {
	results := fn.Call(args)
	if len(results) == 0 {
		return "", nil
	}

	if last := results[len(results)-1]; len(results) > 1 && last.Type().Implements(errorType) {
		if !last.IsNil() {
			return "", last.Interface().(error)
		}
	}

	res := results[0]
	if !res.IsValid() || (res.Kind() == reflect.Interface || res.Kind() == reflect.Pointer) && res.IsNil() {
		return "", nil
	}

	switch vtpe := res.Interface().(type) {
	case error:
		return "", vtpe
	case string:
		return vtpe, nil
	case time.Time:
		return vtpe.Format(time.RFC3339), nil
	case int, int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(vtpe).Int(), 10), nil
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(vtpe).Uint(), 10), nil
	case float32:
		return strconv.FormatFloat(float64(vtpe), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(vtpe, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(vtpe), nil
	case encoding.TextMarshaler:
		b, err := vtpe.MarshalText()
		if err != nil {
			slog.Error("Error marshalling function return", slogx.Error(err))
			return "", err
		}
		return string(b), nil
	case fmt.Stringer:
		return vtpe.String(), nil
	default:
		b, err := json.Marshal(vtpe)
		if err != nil {
			slog.Error("Error marshalling function return", slogx.Error(err))
			return "", err
		}
		return string(b), nil
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()
