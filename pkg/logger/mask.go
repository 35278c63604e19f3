package logger

import (
	"go.uber.org/zap"
)

// MaskSecret creates a zap field that keeps only the first and last two
// characters of a secret (API keys, tokens).
func MaskSecret(key, secret string) zap.Field {
	return zap.String(key, maskValue(secret))
}

// MaskPhone creates a zap field that masks all but the last four digits
// of a caller number.
func MaskPhone(key, phone string) zap.Field {
	if len(phone) <= 4 {
		return zap.String(key, phone)
	}
	masked := make([]byte, len(phone))
	for i := range masked {
		if i >= len(phone)-4 || phone[i] == '+' {
			masked[i] = phone[i]
		} else {
			masked[i] = '*'
		}
	}
	return zap.String(key, string(masked))
}

// MaskPhoneIfPresent masks phone if not empty
func MaskPhoneIfPresent(key, phone string) zap.Field {
	if phone == "" {
		return zap.String(key, "")
	}
	return MaskPhone(key, phone)
}

func maskValue(v string) string {
	if len(v) <= 6 {
		return "****"
	}
	return v[:2] + "****" + v[len(v)-2:]
}
