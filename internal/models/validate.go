package models

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var chatModelPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// ValidateChatModel accepts lowercase model identifiers such as
// "gemini-1.5-flash" or "gpt-4o-mini".
func ValidateChatModel(fl validator.FieldLevel) bool {
	return chatModelPattern.MatchString(fl.Field().String())
}

// NewValidator returns a validator reading the same `binding` tags gin uses,
// with the chatmodel rule registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	_ = v.RegisterValidation("chatmodel", ValidateChatModel)
	return v
}

var validate = NewValidator()

// Validate checks v against its binding tags outside of a gin request.
func Validate(v interface{}) error {
	return validate.Struct(v)
}
