package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("notblank", validators.NotBlank)

		// at least one non-blank item in a comma separated list
		_ = v.RegisterValidation("csv_items", func(fl validator.FieldLevel) bool {
			for _, item := range strings.Split(fl.Field().String(), ",") {
				if strings.TrimSpace(item) != "" {
					return true
				}
			}
			return false
		})

		// surrounding whitespace is trimmed when the user is stored
		_ = v.RegisterValidation("trimmed_email", func(fl validator.FieldLevel) bool {
			return v.Var(strings.TrimSpace(fl.Field().String()), "email") == nil
		})
	}
}

// BindJSON decodes and validates the body, answering 400 with field errors
// on failure. Each field's message comes from its `msg` struct tag.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	err := ctx.ShouldBindJSON(out)

	if err != nil {
		RespondErrors(ctx, http.StatusBadRequest, parseBindError(err, out)...)
		return false
	}

	return true
}

func parseBindError(err error, out interface{}) []FieldError {
	rootType := baseStructType(out)

	var validatorError validator.ValidationErrors

	if errors.As(err, &validatorError) {
		fields := make([]FieldError, 0, len(validatorError))

		for _, fieldError := range validatorError {
			path, sf := jsonPathFromValidatorError(rootType, fieldError)

			fields = append(fields, FieldError{
				Msg:      fieldMessage(sf, fieldError.Tag(), fieldError.Param()),
				Param:    path,
				Location: "body",
			})
		}
		return fields
	}

	var unmatchedTypeError *json.UnmarshalTypeError

	if errors.As(err, &unmatchedTypeError) {
		path, sf := mapStructPathToJSONPath(rootType, splitDotPath(unmatchedTypeError.Field))
		if path == "" {
			path = strings.TrimSpace(unmatchedTypeError.Field)
		}

		msg := "Invalid value"
		if sf != nil {
			if m := sf.Tag.Get("msg"); m != "" {
				msg = m
			}
		}

		return []FieldError{{Msg: msg, Param: path, Location: "body"}}
	}

	// syntax errors, empty bodies and anything else the decoder rejects
	return []FieldError{{Msg: "Invalid JSON body", Location: "body"}}
}

func fieldMessage(sf *reflect.StructField, rule, param string) string {
	if sf != nil {
		if m := sf.Tag.Get("msg"); m != "" {
			return m
		}
	}

	return validationMessage(rule, param)
}

func baseStructType(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)

	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t != nil && t.Kind() == reflect.Struct {
		return t
	}

	return nil
}

func jsonPathFromValidatorError(rootType reflect.Type, fieldError validator.FieldError) (string, *reflect.StructField) {
	// Namespace format is usually "<StructName>.<Field>[.<NestedField>...]".
	namespace := fieldError.StructNamespace()
	if namespace == "" {
		namespace = fieldError.Namespace()
	}

	parts := splitDotPath(namespace)
	if len(parts) == 0 {
		return fieldError.Field(), nil
	}

	if rootType != nil && rootType.Name() != "" && parts[0] == rootType.Name() {
		parts = parts[1:]
	}

	path, sf := mapStructPathToJSONPath(rootType, parts)
	if path == "" {
		return fieldError.Field(), sf
	}

	return path, sf
}

func splitDotPath(dotPath string) []string {
	dotPath = strings.TrimSpace(dotPath)
	if dotPath == "" {
		return nil
	}

	return strings.Split(dotPath, ".")
}

// mapStructPathToJSONPath walks parts through rootType and returns the JSON
// path along with the leaf struct field, when it could be resolved.
func mapStructPathToJSONPath(rootType reflect.Type, parts []string) (string, *reflect.StructField) {
	current := rootType
	out := make([]string, 0, len(parts))

	var leaf *reflect.StructField

	for _, rawPart := range parts {
		if rawPart == "" {
			continue
		}

		fieldName, indexSuffix := splitFieldIndex(rawPart)
		jsonName := fieldName
		leaf = nil

		var nextType reflect.Type
		if current != nil && current.Kind() == reflect.Struct {
			if sf, ok := current.FieldByName(fieldName); ok {
				jsonName = jsonNameFromStructField(sf)
				nextType = sf.Type
				leaf = &sf
			} else if sf, ok := fieldByJSONName(current, fieldName); ok {
				// decoder errors already use json names
				nextType = sf.Type
				leaf = &sf
			}
		}

		out = append(out, jsonName+indexSuffix)
		current = unwindCollection(nextType)
	}

	return strings.Join(out, "."), leaf
}

func fieldByJSONName(t reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < t.NumField(); i++ {
		if sf := t.Field(i); jsonNameFromStructField(sf) == name {
			return sf, true
		}
	}

	return reflect.StructField{}, false
}

func splitFieldIndex(part string) (string, string) {
	idx := strings.Index(part, "[")
	if idx == -1 {
		return part, ""
	}

	return part[:idx], part[idx:]
}

func jsonNameFromStructField(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "" {
		return sf.Name
	}

	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return sf.Name
	}

	return name
}

func unwindCollection(t reflect.Type) reflect.Type {
	for t != nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			t = t.Elem()
		default:
			return t
		}
	}

	return nil
}

// validationMessage is the fallback when a field has no msg tag.
func validationMessage(rule, param string) string {
	switch rule {
	case "required", "notblank", "csv_items":
		return "Field is required"
	case "email", "trimmed_email":
		return "Please include a valid email"
	case "min":
		return "Must be at least " + param + " characters"
	case "max":
		return "Must be at most " + param + " characters"
	default:
		return "Invalid value"
	}
}
