package util

import "regexp"

var platformNameRegex = regexp.MustCompile(`^[a-z][a-z0-9]{1,31}$`)

func IsValidPlatformName(s string) bool {
	return platformNameRegex.MatchString(s)
}

func IsValidEnum(value string, validValues []string) bool {
	if value == "" {
		return true
	}
	for _, v := range validValues {
		if value == v {
			return true
		}
	}
	return false
}
