package providers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var eventValidator = validator.New()

// Validate checks a normalized event before it reaches the dispatcher.
// Failures wrap ErrMalformedPayload and name every offending field.
func Validate(ev Event) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrMalformedPayload)
	}
	err := eventValidator.Struct(ev)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", f.Field(), f.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrMalformedPayload, strings.Join(msgs, ", "))
}
