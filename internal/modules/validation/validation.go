// README: Input validation for identity, contact and order fields.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"giftwave/internal/apperr"
)

// Result is the outcome of a single check. Message is shown to the user as is.
type Result struct {
	Valid   bool   `json:"isValid"`
	Message string `json:"message"`
}

func ok(msg string) Result   { return Result{Valid: true, Message: msg} }
func fail(msg string) Result { return Result{Valid: false, Message: msg} }

var (
	emailPattern = regexp.MustCompile(`^[A-Z0-9a-z._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,64}$`)
	namePattern  = regexp.MustCompile(`^[a-zA-Z\s\-']+$`)

	cnicStripper  = strings.NewReplacer(" ", "", "-", "", "_", "")
	phoneStripper = strings.NewReplacer(" ", "", "-", "", "+", "")
)

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NormalizeCNIC strips the separators users commonly type.
func NormalizeCNIC(cnic string) string {
	return cnicStripper.Replace(cnic)
}

func CNIC(cnic string) Result {
	clean := NormalizeCNIC(cnic)
	if utf8.RuneCountInString(clean) != 13 {
		return fail("CNIC must be exactly 13 digits")
	}
	if !isDigits(clean) {
		return fail("CNIC must contain only numbers")
	}
	region, _ := strconv.Atoi(clean[:2])
	if region < 1 || region > 99 {
		return fail(fmt.Sprintf("Invalid province code (%d) in CNIC", region))
	}
	if !validCheckDigit(clean) {
		return fail(fmt.Sprintf("Invalid check digit (%s) in CNIC", clean[12:]))
	}
	return ok("CNIC is valid")
}

// validCheckDigit accepts any decimal digit. NADRA does not publish the
// checksum algorithm, so only the shape is enforced.
func validCheckDigit(clean string) bool {
	d := clean[len(clean)-1]
	return d >= '0' && d <= '9'
}

// FormatCNIC renders partial input progressively as XXXXX-XXXXXXX-X.
func FormatCNIC(cnic string) string {
	var digits strings.Builder
	for _, r := range NormalizeCNIC(cnic) {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) > 13 {
		d = d[:13]
	}
	switch {
	case len(d) <= 5:
		return d
	case len(d) < 13:
		return d[:5] + "-" + d[5:]
	default:
		return d[:5] + "-" + d[5:12] + "-" + d[12:]
	}
}

// NormalizePhone returns the 10-digit national number without country code
// or trunk prefix.
func NormalizePhone(phone string) string {
	clean := phoneStripper.Replace(phone)
	switch {
	case strings.HasPrefix(clean, "92"):
		return clean[2:]
	case strings.HasPrefix(clean, "0"):
		return clean[1:]
	}
	return clean
}

func Phone(phone string) Result {
	local := NormalizePhone(phone)
	if utf8.RuneCountInString(local) != 10 {
		return fail("Phone number must be 10 digits (excluding country code)")
	}
	if !isDigits(local) {
		return fail("Phone number must contain only numbers")
	}
	if local[0] < '3' {
		return fail("Invalid mobile number prefix")
	}
	return ok("Phone number is valid")
}

func Email(email string) Result {
	if !emailPattern.MatchString(email) {
		return fail("Please enter a valid email address")
	}
	return ok("Email is valid")
}

func Name(name string) Result {
	clean := strings.TrimSpace(name)
	n := utf8.RuneCountInString(clean)
	if n < 2 {
		return fail("Name must be at least 2 characters long")
	}
	if n > 50 {
		return fail("Name must be less than 50 characters")
	}
	if !namePattern.MatchString(clean) {
		return fail("Name can only contain letters, spaces, hyphens, and apostrophes")
	}
	return ok("Name is valid")
}

func Address(address string) Result {
	n := utf8.RuneCountInString(strings.TrimSpace(address))
	if n < 10 {
		return fail("Address must be at least 10 characters long")
	}
	if n > 200 {
		return fail("Address must be less than 200 characters")
	}
	return ok("Address is valid")
}

func GiftName(name string) Result {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < 3 {
		return fail("Gift name must be at least 3 characters long")
	}
	if n > 100 {
		return fail("Gift name must be less than 100 characters")
	}
	return ok("Gift name is valid")
}

func URL(raw string) Result {
	if raw == "" {
		return ok("URL is optional")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fail("Please enter a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fail("URL must start with http:// or https://")
	}
	return ok("URL is valid")
}

// City accepts any non-empty city name; unknown cities are still deliverable.
func City(city string) Result {
	if strings.TrimSpace(city) == "" {
		return fail("City is required")
	}
	return ok("City is valid")
}

// Check converts a failed Result into an apperr.ValidationError for field.
func Check(field string, r Result) error {
	if r.Valid {
		return nil
	}
	return apperr.Validation(field, r.Message)
}

// First returns the first failing check, in argument order.
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
