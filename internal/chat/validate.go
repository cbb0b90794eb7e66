package chat

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	MaxNameLength    = 20
	MaxMessageLength = 500
)

var (
	ErrNameEmpty      = errors.New("username cannot be empty")
	ErrNameTooLong    = errors.New("username must be 20 characters or less")
	ErrNameTaken      = errors.New("username is already taken")
	ErrAlreadyNamed   = errors.New("username already set")
	ErrMessageEmpty   = errors.New("message cannot be empty")
	ErrMessageTooLong = errors.New("message must be 500 characters or less")
)

var validate = validator.New()

// max counts runes for strings, so multi-byte names are measured in characters.
type nameInput struct {
	Name string `validate:"required,max=20"`
}

type bodyInput struct {
	Body string `validate:"required,max=500"`
}

// NormalizeName trims raw and checks it against the name rules.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if err := validate.Struct(nameInput{Name: name}); err != nil {
		return "", mapValidation(err, ErrNameEmpty, ErrNameTooLong)
	}
	return name, nil
}

// NormalizeBody trims raw and checks it against the message rules.
func NormalizeBody(raw string) (string, error) {
	body := strings.TrimSpace(raw)
	if err := validate.Struct(bodyInput{Body: body}); err != nil {
		return "", mapValidation(err, ErrMessageEmpty, ErrMessageTooLong)
	}
	return body, nil
}

func mapValidation(err error, empty, tooLong error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Tag() {
		case "required":
			return empty
		case "max":
			return tooLong
		}
	}
	return err
}
