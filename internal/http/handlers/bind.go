package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	msgValidationFailed  = "Validation failed."
	msgPasswordsMismatch = "Password and confirm password do not match."
	msgInvalidBody       = "Invalid request body."
)

// BindJSON decodes and validates the body into out. On failure it writes a
// 400 envelope and returns false.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	err := ctx.ShouldBindJSON(out)

	if err != nil {
		details := parseBindError(err, out)
		RespondBadRequest(ctx, bindErrorMessage(err), details)

		return false
	}

	return true
}

func bindErrorMessage(err error) string {
	var validatorError validator.ValidationErrors

	if !errors.As(err, &validatorError) {
		return msgInvalidBody
	}

	for _, fieldError := range validatorError {
		if fieldError.Tag() == "eqfield" {
			return msgPasswordsMismatch
		}
	}

	return msgValidationFailed
}

func parseBindError(err error, out interface{}) interface{} {
	rootType := baseStructType(out)

	var validatorError validator.ValidationErrors

	if errors.As(err, &validatorError) {
		fields := make([]FieldError, 0, len(validatorError))

		for _, fieldError := range validatorError {
			rule := fieldError.Tag()
			param := fieldError.Param()

			fields = append(fields, FieldError{
				Field:   jsonFieldName(rootType, fieldError.StructField()),
				Rule:    rule,
				Param:   param,
				Message: validationMessage(rule, param),
			})
		}
		return gin.H{"fields": fields}
	}

	var syntaxError *json.SyntaxError

	if errors.As(err, &syntaxError) {
		return gin.H{"json": "invalid_json_syntax"}
	}

	var typeError *json.UnmarshalTypeError

	if errors.As(err, &typeError) {
		// decoder already reports the json key path
		field := strings.TrimSpace(typeError.Field)

		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []FieldError{
				{
					Field:   field,
					Rule:    "type",
					Message: fmt.Sprintf("must be of type %s", typeError.Type.String()),
				},
			},
		}
	}

	// empty body, unknown encoding and the like
	return gin.H{"json": "unreadable_body"}
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

// jsonFieldName maps a Go field name to its json tag. Request bodies are flat.
func jsonFieldName(rootType reflect.Type, goName string) string {
	if rootType == nil {
		return goName
	}

	sf, ok := rootType.FieldByName(goName)
	if !ok {
		return goName
	}

	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return goName
	}

	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "len":
		return "must be exactly " + param + " characters"
	case "numeric":
		return "must contain digits only"
	case "eqfield":
		if param == "Password" {
			return msgPasswordsMismatch
		}
		return "must match " + param
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
