package api

import (
	"strings"
	"unicode/utf8"

	"github.com/mahaj/taskchat/pkg/apierr"
)

const (
	minTitleLen   = 3
	maxTitleLen   = 100
	maxContentLen = 5000
	minQueryLen   = 2
)

func checkTitle(title string) []apierr.Code {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	switch {
	case n < minTitleLen:
		return []apierr.Code{apierr.CodeTitleTooShort}
	case n > maxTitleLen:
		return []apierr.Code{apierr.CodeTitleTooLong}
	}
	return nil
}

func checkContent(content string, required bool) []apierr.Code {
	trimmed := strings.TrimSpace(content)
	if required && trimmed == "" {
		return []apierr.Code{apierr.CodeContentEmpty}
	}
	if utf8.RuneCountInString(trimmed) > maxContentLen {
		return []apierr.Code{apierr.CodeContentTooLong}
	}
	return nil
}

// invalid turns accumulated codes into an error, nil when there are none.
func invalid(codes ...[]apierr.Code) error {
	var all []apierr.Code
	for _, c := range codes {
		all = append(all, c...)
	}
	if len(all) == 0 {
		return nil
	}
	return apierr.Validation(all...)
}

// nonNil keeps list results non-nil when the backend answers with null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
