package reflectx

import (
	"reflect"
	"runtime"
	"strings"
)

// IsFunction reports whether fn is a function value.
func IsFunction(fn any) bool {
	if fn == nil {
		return false
	}

	ftpe := reflect.TypeOf(fn)
	isFunc := ftpe.Kind() == reflect.Func

	return isFunc
}

// FunctionName derives a tool name from a function, stripping package and receiver qualifiers.
func FunctionName(fn any) string {
	if !IsFunction(fn) {
		return ""
	}

	val := reflect.ValueOf(fn)
	typ := val.Type()

	var name string
	// For named types (like AgentFunction), use the type name
	if typ.Name() != "" {
		name = typ.String()
	} else {
		// For methods, use the method name
		if typ.NumIn() > 0 && typ.In(0).Kind() == reflect.Struct {
			if fn := runtime.FuncForPC(val.Pointer()); fn != nil {
				name = fn.Name()
				if lastDot := strings.LastIndex(name, "."); lastDot >= 0 {
					name = strings.TrimSuffix(name[lastDot+1:], "-fm")
				}
			}
		} else {
			// For anonymous functions, use the full signature
			if fn := runtime.FuncForPC(val.Pointer()); fn != nil {
				name = fn.Name()
				if lastDot := strings.LastIndex(name, "."); lastDot >= 0 {
					name = strings.TrimSuffix(name[lastDot+1:], "-fm")
				}
			} else {
				name = typ.String()
			}
		}
	}
	return name
}
