package pmem

import (
	"reflect"
	"sync"
)

var elemCheckCache sync.Map // reflect.Type -> error

// checkElem reports whether values of t can live in persistent memory:
// fixed size, no pointers the garbage collector would have to trace, no
// process-local addresses.
func checkElem(t reflect.Type) error {
	if v, ok := elemCheckCache.Load(t); ok {
		err, _ := v.(error)
		return err
	}
	err := checkKind(t, t)
	elemCheckCache.Store(t, err)
	return err
}

func checkKind(root, t reflect.Type) error {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return nil
	case reflect.Array:
		return checkKind(root, t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if err := checkKind(root, t.Field(i).Type); err != nil {
				return err
			}
		}
		return nil
	case reflect.Uintptr, reflect.UnsafePointer, reflect.Pointer:
		return &ElemTypeError{Type: root, Reason: t.String() + " is a process-local address"}
	default:
		return &ElemTypeError{Type: root, Reason: t.Kind().String() + " has no fixed-size representation"}
	}
}
