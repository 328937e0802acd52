package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"itinera/pkg/logger"
	"itinera/pkg/model"

	"github.com/go-playground/validator/v10"
)

// MaxWindow bounds how far apart depart_after and arrive_before may be.
const MaxWindow = 14 * 24 * time.Hour

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

// Query is the validated shape of a search request.
type Query struct {
	Origin       string                 `json:"origin" validate:"required,len=3,alpha"`
	Destination  string                 `json:"destination" validate:"required,len=3,alpha"`
	DepartAfter  time.Time              `json:"depart_after" validate:"required"`
	ArriveBefore time.Time              `json:"arrive_before" validate:"required,gtfield=DepartAfter"`
	MaxLayovers  int                    `json:"max_layovers" validate:"gte=0,lte=3"`
	Passengers   int                    `json:"passengers" validate:"min=1,max=9"`
	OptimizeFor  model.OptimizationMode `json:"optimize_for" validate:"required,oneof=fastest cheapest greenest balanced"`
}

type SearchValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewSearchValidator(log *logger.Logger) *SearchValidator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonName)

	return &SearchValidator{
		validate: v,
		logger:   log,
	}
}

func (v *SearchValidator) Validate(q *Query) error {
	if err := v.validate.Struct(q); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}

	if strings.EqualFold(q.Origin, q.Destination) {
		return ValidationErrors{{Field: "destination", Message: "destination must differ from origin"}}
	}

	if q.ArriveBefore.Sub(q.DepartAfter) > MaxWindow {
		return ValidationErrors{{
			Field:   "arrive_before",
			Message: fmt.Sprintf("search window cannot exceed %d days", int(MaxWindow.Hours()/24)),
		}}
	}

	return nil
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "len":
			message = fmt.Sprintf("%s must be a %s-letter code", err.Field(), err.Param())
		case "alpha":
			message = fmt.Sprintf("%s must contain letters only", err.Field())
		case "min", "gte":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max", "lte":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "gtfield":
			message = fmt.Sprintf("%s must be after depart_after", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}

func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}
