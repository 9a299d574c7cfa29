package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/example/btc-guess/internal/domain/guess"
	"github.com/example/btc-guess/internal/domain/user"
	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// newValidator builds the request validator with the custom tags used by the DTOs
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", validateUsername)
	_ = v.RegisterValidation("direction", validateDirection)
	return v
}

func validateUsername(fl validator.FieldLevel) bool {
	return user.IsValidUsername(fl.Field().String())
}

func validateDirection(fl validator.FieldLevel) bool {
	_, err := guess.ParseDirection(fl.Field().String())
	return err == nil
}

// decodeAndValidate reads a JSON body into dst and validates it. The
// returned error is safe to show to the client.
func decodeAndValidate(v *validator.Validate, r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := v.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return errors.New("invalid request")
	}

	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "username":
		return usernameMessage(field, fmt.Sprint(fe.Value()))
	case "direction":
		return field + " must be UP or DOWN"
	case "uuid":
		return field + " must be a UUID"
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

func usernameMessage(field, value string) string {
	switch {
	case len(value) < user.MinUsernameLength:
		return fmt.Sprintf("%s must be at least %d characters", field, user.MinUsernameLength)
	case len(value) > user.MaxUsernameLength:
		return fmt.Sprintf("%s must be at most %d characters", field, user.MaxUsernameLength)
	default:
		return field + " can only contain letters, numbers, underscores and hyphens"
	}
}
