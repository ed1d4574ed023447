package engineinfra

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/goliatone/go-tenant-cache/querycache"
)

// sigSeparator delimits the segments of a canonical signature.
const sigSeparator = "::"

// canonicalSignature renders a query as a deterministic string. The same
// logical query must always produce the same signature across runs, so
// maps are sorted, pointers are dereferenced and structs are rendered
// field by field.
func canonicalSignature(q querycache.Query) string {
	parts := make([]string, 0, len(q.Args)+2)
	parts = append(parts, q.Model, q.Operation)
	for _, arg := range q.Args {
		parts = append(parts, renderValue(arg))
	}
	return strings.Join(parts, sigSeparator)
}

// fingerprint digests a canonical signature into the fixed-width hex
// string used as the cache key suffix.
func fingerprint(signature string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(signature))
}

// renderValue serializes one argument deterministically based on its kind.
func renderValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		// Stable only within one process lifetime; criteria functions are
		// the usual culprit. Distributed callers should pass named args.
		return fmt.Sprintf("func:%p", v)
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return renderValue(rv.Elem().Interface())
	case reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return renderValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "seq:nil"
		}
		return renderSeq(rv)
	case reflect.Array:
		return renderSeq(rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return renderMap(rv)
	case reflect.Struct:
		return renderStruct(rv)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return fmt.Sprintf("%v", v)
	}

	if data, err := json.Marshal(v); err == nil {
		return "json:" + string(data)
	}
	return "opaque:" + reflect.TypeOf(v).String()
}

func renderSeq(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = renderValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("seq[%d]:{%s}", len(parts), strings.Join(parts, ","))
}

// renderMap sorts entries by rendered key so iteration order never leaks
// into the signature.
func renderMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, renderValue(iter.Key().Interface())+"="+renderValue(iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func renderStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+renderValue(rv.Field(i).Interface()))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}
