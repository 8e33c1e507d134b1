package validate

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidDate reports whether the value is a YYYY-MM-DD string denoting a
// real calendar date. The parser already rejects out-of-range days like
// 2024-02-30; the round-trip comparison additionally rejects unpadded
// variants such as 2024-1-5, which the parser accepts but which are not in
// canonical form.
func ValidDate(value string) bool {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return false
	}
	return t.Format("2006-01-02") == value
}

// ValidAmount reports whether the value parses as a finite number. Empty is
// invalid.
func ValidAmount(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	_, err := decimal.NewFromString(trimmed)
	return err == nil
}

// ValidCategory reports whether the value case-insensitively equals one
// entry of the allow-list. Empty is invalid.
func ValidCategory(value string, allowList []string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	for _, allowed := range allowList {
		if strings.EqualFold(trimmed, allowed) {
			return true
		}
	}
	return false
}

// ValidRequiredText reports whether the value is non-empty after trimming.
func ValidRequiredText(value string) bool {
	return strings.TrimSpace(value) != ""
}
