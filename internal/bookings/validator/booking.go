package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"itinera/pkg/logger"
	"itinera/pkg/model"

	"github.com/go-playground/validator/v10"
)

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
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	log.Debug("Booking validator initialized")

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

// ValidatePlan checks a client-supplied plan: every leg well formed, the legs
// chained end to end and no leg departing before the previous one lands.
func (v *BookingValidator) ValidatePlan(plan *model.Plan) error {
	if err := v.validate.Struct(plan); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	seen := make(map[model.InventoryKey]struct{}, len(plan.Legs))
	for i, leg := range plan.Legs {
		if leg.Faulted() {
			return ValidationErrors{{Field: fmt.Sprintf("legs[%d]", i), Message: "leg carries provider faults"}}
		}
		if leg.DurationMinutes != int(leg.Duration().Minutes()) {
			return ValidationErrors{{
				Field:   fmt.Sprintf("legs[%d].duration_minutes", i),
				Message: "duration_minutes does not match depart_at and arrive_at",
			}}
		}
		key := leg.InventoryKey()
		if _, dup := seen[key]; dup {
			return ValidationErrors{{Field: fmt.Sprintf("legs[%d]", i), Message: "plan uses the same service twice"}}
		}
		seen[key] = struct{}{}

		if i == 0 {
			continue
		}
		prev := plan.Legs[i-1]
		if prev.Destination != leg.Origin {
			return ValidationErrors{{
				Field:   fmt.Sprintf("legs[%d].origin", i),
				Message: fmt.Sprintf("origin must be %s to connect with the previous leg", prev.Destination),
			}}
		}
		if leg.DepartAt.Before(prev.ArriveAt) {
			return ValidationErrors{{
				Field:   fmt.Sprintf("legs[%d].depart_at", i),
				Message: "departs before the previous leg arrives",
			}}
		}
	}

	return nil
}

func (v *BookingValidator) ValidatePassenger(pd *model.PassengerData) error {
	if pd == nil {
		return ValidationErrors{{Field: "passenger_data", Message: "passenger_data is required"}}
	}
	if err := v.validate.Struct(pd); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *BookingValidator) ValidateFilter(filter *model.BookingFilter) error {
	if filter.Status != "" && !filter.Status.Valid() {
		return ValidationErrors{{
			Field:   "status",
			Message: "status must be one of: PROPOSED CONFIRMED CANCELLED EXPIRED",
		}}
	}
	if len(filter.UserID) > 128 {
		return ValidationErrors{{Field: "user_id", Message: "user_id must be at most 128 characters"}}
	}
	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "len":
			message = fmt.Sprintf("%s must be exactly %s characters", err.Field(), err.Param())
		case "gte", "lte":
			message = fmt.Sprintf("%s is out of range", err.Field())
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		case "alphanum":
			message = fmt.Sprintf("%s must be alphanumeric", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "gtfield":
			message = fmt.Sprintf("%s must be after %s", err.Field(), strings.ToLower(err.Param()))
		case "nefield":
			message = fmt.Sprintf("%s must differ from %s", err.Field(), strings.ToLower(err.Param()))
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Namespace(),
			Message: message,
		})
	}

	return validationErrors
}
