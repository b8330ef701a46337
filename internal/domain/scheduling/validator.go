package scheduling

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidBlock wraps the ValidationErrors of a malformed availability block.
var ErrInvalidBlock = errors.New("invalid availability block")

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	messages := make([]string, 0, len(v))
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

func (v ValidationErrors) Unwrap() error { return ErrInvalidBlock }

var weekdays = map[string]struct{}{
	"sunday": {}, "monday": {}, "tuesday": {}, "wednesday": {},
	"thursday": {}, "friday": {}, "saturday": {},
}

// BlockValidator checks availability blocks as they are loaded.
type BlockValidator struct {
	validate *validator.Validate
}

func NewBlockValidator() *BlockValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// Registration only fails for an empty tag name.
	_ = v.RegisterValidation("weekday", validateWeekday)
	v.RegisterStructValidation(validateBlockKind, AvailabilityBlock{})
	return &BlockValidator{validate: v}
}

func validateWeekday(fl validator.FieldLevel) bool {
	_, ok := weekdays[strings.ToLower(strings.TrimSpace(fl.Field().String()))]
	return ok
}

// validateBlockKind enforces that a block is either weekly or one-off.
func validateBlockKind(sl validator.StructLevel) {
	b := sl.Current().Interface().(AvailabilityBlock)
	hasDay := strings.TrimSpace(b.DayOfWeek) != ""
	hasDate := b.SpecificDate != nil
	switch {
	case hasDay && hasDate:
		sl.ReportError(b.SpecificDate, "specific_date", "SpecificDate", "excluded_with_day", "")
	case !hasDay && !hasDate:
		sl.ReportError(b.DayOfWeek, "day_of_week", "DayOfWeek", "required_without_date", "")
	}
	if !b.StartTime.Valid() {
		sl.ReportError(b.StartTime, "start_time", "StartTime", "clock", "")
	}
	if !b.EndTime.Valid() {
		sl.ReportError(b.EndTime, "end_time", "EndTime", "clock", "")
	}
}

// Validate returns nil or ValidationErrors, which unwrap to ErrInvalidBlock.
func (v *BlockValidator) Validate(b *AvailabilityBlock) error {
	err := v.validate.Struct(b)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	return translate(verrs)
}

func translate(errs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, 0, len(errs))
	for _, err := range errs {
		message := err.Error()
		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "weekday":
			message = "day_of_week must be a weekday name (Sunday-Saturday)"
		case "excluded_with_day":
			message = "specific_date cannot be combined with day_of_week"
		case "required_without_date":
			message = "either day_of_week or specific_date is required"
		case "clock":
			message = fmt.Sprintf("%s must fall within one day", err.Field())
		}
		out = append(out, ValidationError{Field: err.Field(), Message: message})
	}
	return out
}
