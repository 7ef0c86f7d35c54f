package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// CountryPrefix is prepended to local mobile numbers.
const CountryPrefix = "+256"

const (
	MinChildAge = 0
	MaxChildAge = 18
)

var phonePattern = regexp.MustCompile(`^\+256[0-9]{9}$`)

// NormalizePhone reduces a mobile number to +256XXXXXXXXX.
//
// Everything except digits and '+' is dropped. A bare 9-digit subscriber
// number gets the country prefix, as do the local "0XXXXXXXXX" and the
// unsigned "256XXXXXXXXX" spellings. Normalizing an already normalized
// number returns it unchanged.
func NormalizePhone(raw string) (string, error) {
	phone := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '+' {
			return r
		}
		return -1
	}, strings.TrimSpace(raw))

	if !strings.HasPrefix(phone, CountryPrefix) {
		switch {
		case len(phone) == 9:
			phone = CountryPrefix + phone
		case len(phone) == 10 && phone[0] == '0':
			phone = CountryPrefix + phone[1:]
		case len(phone) == 12 && strings.HasPrefix(phone, "256"):
			phone = "+" + phone
		}
	}
	if !phonePattern.MatchString(phone) {
		return "", fmt.Errorf("%w: mobile number %q", ErrInvalidFormat, raw)
	}
	return phone, nil
}

// ParseChildAges parses "16/9/6", "4,1" or "4 1" into ages in birth order.
func ParseChildAges(raw string) ([]int, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '/' || r == ',' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no children ages in %q", ErrInvalidFormat, raw)
	}
	ages := make([]int, 0, len(fields))
	for _, f := range fields {
		age, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: child age %q is not a number", ErrInvalidFormat, f)
		}
		if age < MinChildAge || age > MaxChildAge {
			return nil, fmt.Errorf("%w: child age %d must be between %d and %d", ErrInvalidFormat, age, MinChildAge, MaxChildAge)
		}
		ages = append(ages, age)
	}
	return ages, nil
}

// FormatChildAges is the inverse of ParseChildAges using '/' separators.
func FormatChildAges(ages []int) string {
	parts := make([]string, len(ages))
	for i, a := range ages {
		parts[i] = strconv.Itoa(a)
	}
	return strings.Join(parts, "/")
}

// DeriveIdentifier builds the user identifier from first and surname
// initials, the phone digits without country prefix, the child count and
// the concatenated ages: Jane Doe, 0701234567, 2 children aged "5/3"
// gives "JD701234567253".
//
// A user without children may leave ages empty.
//
// The result is not a hash. Two users sharing every attribute collide and
// registration rejects the second one.
func DeriveIdentifier(firstName, surname, phone string, numChildren int, ages string) (string, error) {
	firstName = strings.TrimSpace(firstName)
	surname = strings.TrimSpace(surname)
	if firstName == "" || surname == "" {
		return "", fmt.Errorf("%w: first name and surname are required", ErrInvalidInput)
	}
	if numChildren < 0 {
		return "", fmt.Errorf("%w: number of children must be non-negative", ErrInvalidInput)
	}
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}
	var parsed []int
	if numChildren > 0 || strings.TrimSpace(ages) != "" {
		parsed, err = ParseChildAges(ages)
		if err != nil {
			return "", err
		}
	}

	var b strings.Builder
	b.WriteRune(unicode.ToUpper(firstRune(firstName)))
	b.WriteRune(unicode.ToUpper(firstRune(surname)))
	b.WriteString(strings.TrimPrefix(normalized, CountryPrefix))
	b.WriteString(strconv.Itoa(numChildren))
	for _, a := range parsed {
		b.WriteString(strconv.Itoa(a))
	}
	return b.String(), nil
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
