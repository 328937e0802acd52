package sanitizer

import (
	"regexp"
	"strings"

	"itinera/pkg/model"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reNonLetters        = regexp.MustCompile(`[^\p{L}]+`)
	reNonLettersDigits  = regexp.MustCompile(`[^0-9\p{L}]+`)
	reDocumentSeparator = regexp.MustCompile(`[\s\-./]+`)
)

func trim(s string) string {
	return strings.TrimSpace(s)
}

func upper(s string) string {
	return strings.ToUpper(s)
}

func lower(s string) string {
	return strings.ToLower(s)
}

// NormalizeCode cleans a location code: "lon " becomes "LON".
func NormalizeCode(code string) string {
	p := Pipeline{
		trim,
		func(s string) string { return reNonLetters.ReplaceAllString(s, "") },
		upper,
	}
	return p.Apply(code)
}

func NormalizeEmail(email string) string {
	p := Pipeline{trim, lower}
	return p.Apply(email)
}

// NormalizePassport strips separators and uppercases. Characters other than letters
// and digits are kept so the validator can reject them.
func NormalizePassport(number string) string {
	p := Pipeline{
		trim,
		func(s string) string { return reDocumentSeparator.ReplaceAllString(s, "") },
		upper,
	}
	return p.Apply(number)
}

// NormalizeUserID trims and drops ids made only of punctuation.
func NormalizeUserID(id string) string {
	id = trim(id)
	if reNonLettersDigits.ReplaceAllString(id, "") == "" {
		return ""
	}
	return id
}

func NormalizeStatus(status string) model.BookingStatus {
	return model.BookingStatus(upper(trim(status)))
}

// NormalizePassenger returns a normalized copy; nil stays nil.
func NormalizePassenger(pd *model.PassengerData) *model.PassengerData {
	if pd == nil {
		return nil
	}
	return &model.PassengerData{
		FullName:       NormalizeName(pd.FullName),
		Email:          NormalizeEmail(pd.Email),
		PassportNumber: NormalizePassport(pd.PassportNumber),
	}
}
