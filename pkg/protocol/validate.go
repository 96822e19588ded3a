package protocol

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their JSON names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validatePayload checks the struct tags of a decoded payload.
func validatePayload(event string, payload any) error {
	err := validatorInstance().Struct(payload)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &PayloadError{
			Event: event,
			Field: fieldPath(fe.Namespace()),
			Err:   fmt.Errorf("failed %q", fe.Tag()),
		}
	}
	return &PayloadError{Event: event, Err: err}
}

// fieldPath drops the struct name prefix validator puts on namespaces,
// turning "UpdateNote.note.id" into "note.id".
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
