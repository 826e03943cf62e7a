package reflectx

import (
	"reflect"
)

// IsInterface reports whether value is exactly the interface type I.
func IsInterface[I any](value reflect.Type) bool {
	iface := reflect.TypeOf((*I)(nil)).Elem()
	return iface.Kind() == reflect.Interface && value == iface
}
