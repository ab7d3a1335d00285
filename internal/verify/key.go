package verify

import "regexp"

// License keys are five uppercase-alphanumeric groups of five,
// hyphen-separated. Case-sensitive, no normalization beyond the
// whitespace trim the caller performs.
var keyPattern = regexp.MustCompile(`^[A-Z0-9]{5}-[A-Z0-9]{5}-[A-Z0-9]{5}-[A-Z0-9]{5}$`)

func ValidKeyFormat(key string) bool {
	return keyPattern.MatchString(key)
}
