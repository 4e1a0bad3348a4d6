package message

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"
)

var wireEnvelopeType = reflect.TypeOf(wireEnvelope{})

// checkKeys walks a JSON document alongside the Go type it decodes into and
// rejects repeated keys and keys that only match a field case-insensitively.
// encoding/json accepts both.
func checkKeys(data []byte) error {
	return checkValue(gjson.ParseBytes(data), wireEnvelopeType, "")
}

func checkValue(v gjson.Result, t reflect.Type, path string) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t.Kind() == reflect.Struct && v.IsObject():
		fields := jsonFields(t)
		seen := make(map[string]bool, len(fields))
		var err error
		v.ForEach(func(key, value gjson.Result) bool {
			name := key.String()
			if seen[name] {
				err = fmt.Errorf("duplicate key %q", path+name)
				return false
			}
			seen[name] = true
			ft, ok := fields[name]
			if !ok {
				err = fmt.Errorf("unknown key %q", path+name)
				return false
			}
			err = checkValue(value, ft, path+name+".")
			return err == nil
		})
		return err
	case t.Kind() == reflect.Slice && v.IsArray():
		var err error
		v.ForEach(func(_, elem gjson.Result) bool {
			err = checkValue(elem, t.Elem(), path)
			return err == nil
		})
		return err
	}
	return nil
}

// jsonFields maps the exact JSON names of t's fields to their types.
func jsonFields(t reflect.Type) map[string]reflect.Type {
	out := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out[name] = f.Type
	}
	return out
}
