package yaml

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/trigg3rX/proof-coordinator/pkg/env"
)

// Validate checks the `validate` struct tags of config, a struct or pointer to one.
// Supported rules: required, eth_address, private_key, url, listen_addr, oneof=a|b, min=n, max=n.
// String rules on a []string apply to every element.
func Validate(config interface{}) error {
	value := reflect.ValueOf(config)
	if value.Kind() == reflect.Ptr {
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return fmt.Errorf("config must be a struct")
	}
	return validateStruct(value)
}

func validateStruct(structValue reflect.Value) error {
	structType := structValue.Type()

	for i := 0; i < structValue.NumField(); i++ {
		field := structValue.Field(i)
		fieldType := structType.Field(i)
		if !fieldType.IsExported() {
			continue
		}

		if tag := fieldType.Tag.Get("validate"); tag != "" {
			for _, rule := range strings.Split(tag, ",") {
				rule = strings.TrimSpace(rule)
				if rule == "" {
					continue
				}
				if err := applyRule(field, rule); err != nil {
					return fmt.Errorf("field %s: %w", fieldType.Name, err)
				}
			}
		}

		if field.Kind() == reflect.Struct {
			if err := validateStruct(field); err != nil {
				return fmt.Errorf("%s.%w", fieldType.Name, err)
			}
		}
	}
	return nil
}

func applyRule(field reflect.Value, rule string) error {
	name, arg, _ := strings.Cut(rule, "=")

	switch name {
	case "required":
		if isZero(field) {
			return fmt.Errorf("required value is empty")
		}
		return nil
	case "min", "max":
		return checkBound(field, name, arg)
	}

	check, ok := stringRules(arg)[name]
	if !ok {
		return fmt.Errorf("unknown validation rule: %s", name)
	}
	return eachString(field, func(s string) error {
		// empty values are the business of "required"
		if s == "" {
			return nil
		}
		if !check(s) {
			return fmt.Errorf("%q fails %s", s, rule)
		}
		return nil
	})
}

func stringRules(arg string) map[string]func(string) bool {
	return map[string]func(string) bool{
		"eth_address": env.IsValidEthAddress,
		"private_key": env.IsValidPrivateKey,
		"url":         env.IsValidURL,
		"listen_addr": env.IsValidListenAddress,
		"oneof": func(s string) bool {
			for _, allowed := range strings.Split(arg, "|") {
				if s == allowed {
					return true
				}
			}
			return false
		},
	}
}

func eachString(field reflect.Value, fn func(string) error) error {
	switch {
	case field.Kind() == reflect.String:
		return fn(field.String())
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		for i := 0; i < field.Len(); i++ {
			if err := fn(field.Index(i).String()); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("string rule on %s field", field.Kind())
	}
}

func isZero(field reflect.Value) bool {
	switch field.Kind() {
	case reflect.String:
		return env.IsEmpty(field.String())
	case reflect.Slice, reflect.Map:
		return field.Len() == 0
	case reflect.Bool:
		return false
	default:
		return field.IsZero()
	}
}

func checkBound(field reflect.Value, name, arg string) error {
	limit, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return fmt.Errorf("invalid %s value %q", name, arg)
	}

	var got float64
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		got = float64(field.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		got = float64(field.Uint())
	case reflect.Float32, reflect.Float64:
		got = field.Float()
	case reflect.String, reflect.Slice:
		got = float64(field.Len())
	default:
		return fmt.Errorf("%s rule on %s field", name, field.Kind())
	}

	if name == "min" && got < limit {
		return fmt.Errorf("value %v is less than minimum %v", got, limit)
	}
	if name == "max" && got > limit {
		return fmt.Errorf("value %v is greater than maximum %v", got, limit)
	}
	return nil
}
