package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"kittybook/pkg/utils"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs validator tags on a decoded request payload and folds
// the failures into one user-facing message.
func ValidateStruct(payload interface{}) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var parts []string
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("field '%s' failed on '%s'", strings.ToLower(fe.Field()), fe.Tag()))
	}
	msg := strings.Join(parts, "; ")
	return utils.ErrorHandler(errors.New(msg), msg)
}
