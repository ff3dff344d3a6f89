package models

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks the request envelope and field bounds. Missing optional
// fields are never an error. Field names in the returned errors are the JSON
// names the client sent.
func (r *ProfileRequest) Validate() error {
	validateOnce.Do(func() {
		// a single instance caches struct info
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonName)
	})
	return validate.Struct(r)
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}
