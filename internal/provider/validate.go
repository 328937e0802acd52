package provider

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"itinera/pkg/model"

	"github.com/go-playground/validator/v10"
)

// durationSlackMinutes tolerates rounding between a hop's declared duration and its timestamps.
const durationSlackMinutes = 1

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// faultReasons flattens validator output into short, payload-free reasons.
func faultReasons(err error) []string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []string{err.Error()}
	}

	reasons := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			reasons = append(reasons, fmt.Sprintf("%s missing", field))
		case "gte", "gt":
			reasons = append(reasons, fmt.Sprintf("%s below %s", field, fe.Param()))
		case "lte", "lt":
			reasons = append(reasons, fmt.Sprintf("%s above %s", field, fe.Param()))
		case "eq", "oneof":
			reasons = append(reasons, fmt.Sprintf("%s has unexpected value", field))
		default:
			reasons = append(reasons, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return reasons
}

func (c *httpClient) checkFragment(f model.RouteFragment) []string {
	if err := c.validate.Struct(f); err != nil {
		return faultReasons(err)
	}
	declared := f.DurationMinutes
	actual := int(f.Duration().Minutes())
	if diff := declared - actual; diff > durationSlackMinutes || diff < -durationSlackMinutes {
		return []string{fmt.Sprintf("duration_minutes %d disagrees with schedule (%d)", declared, actual)}
	}
	return nil
}

func (c *httpClient) checkQuote(q Quote, passengers int) []string {
	if err := c.validate.Struct(q); err != nil {
		return faultReasons(err)
	}
	expected := (*q.BasePrice + *q.Taxes + *q.Fees) * float64(passengers)
	tolerance := 0.05 + 0.01*float64(passengers)
	if math.Abs(expected-*q.Total) > tolerance {
		return []string{"total does not match price components"}
	}
	return nil
}

func (c *httpClient) checkAvailability(a Availability) []string {
	if err := c.validate.Struct(a); err != nil {
		return faultReasons(err)
	}
	if *a.HoldCount > *a.TotalCapacity {
		return []string{"hold_count exceeds total_capacity"}
	}
	if *a.AvailableSeats+*a.BookedCount+*a.HoldCount != *a.TotalCapacity {
		return []string{"seat counts do not add up to total_capacity"}
	}
	return nil
}

// checkAssessment fills conservative defaults for optional fields before validating.
func (c *httpClient) checkAssessment(a *Assessment) []string {
	if a.Factors == nil {
		a.Factors = []RiskFactor{}
	}
	if err := c.validate.Struct(a); err != nil {
		return faultReasons(err)
	}
	if a.Recommendation == "" {
		a.Recommendation = Recommend(*a.RiskScore)
	}
	return nil
}

// Recommend maps a risk score to the provider's advisory label.
func Recommend(score float64) string {
	if score > 0.6 {
		return "avoid"
	}
	return "acceptable"
}
