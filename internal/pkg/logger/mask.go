package logger

import "strings"

// MaskSecret masks a secret value, preserving only the last 4 characters.
func MaskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// MaskSignatureHeader keeps the timestamp of a "t=...,v1=..." header and
// masks every signature token.
func MaskSignatureHeader(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.Split(header, ",")
	masked := make([]string, 0, len(parts))
	for _, part := range parts {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			masked = append(masked, MaskSecret(part))
			continue
		}
		if key == "t" {
			masked = append(masked, key+"="+val)
			continue
		}
		masked = append(masked, key+"="+MaskSecret(val))
	}
	return strings.Join(masked, ",")
}
