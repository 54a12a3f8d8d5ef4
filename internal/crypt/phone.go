package crypt

import "regexp"

// Pre-compiled pattern for mobile numbers: "09" followed by nine ASCII digits.
var phoneRegex = regexp.MustCompile(`^09[0-9]{9}$`)

// ValidatePhoneNumber reports whether value is a mobile number accepted for
// encryption. Decryption never validates its input.
func ValidatePhoneNumber(value string) bool {
	return phoneRegex.MatchString(value)
}
