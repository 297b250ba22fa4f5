package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = map[string]struct{}{
	"email":        {},
	"phone":        {},
	"bank_account": {},
	"tax_id":       {},
}

// Metadata copies an audit payload, masking partner contact and banking
// fields at any depth.
func Metadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
			out[key] = maskValue(key, value)
			continue
		}
		switch cast := value.(type) {
		case map[string]any:
			out[key] = Metadata(cast)
		case []any:
			items := make([]any, 0, len(cast))
			for _, item := range cast {
				if nested, ok := item.(map[string]any); ok {
					items = append(items, Metadata(nested))
					continue
				}
				items = append(items, item)
			}
			out[key] = items
		default:
			out[key] = value
		}
	}
	return out
}

func maskValue(key string, value any) any {
	s, ok := value.(string)
	if !ok {
		return maskToken
	}
	if strings.EqualFold(key, "email") {
		return Email(s)
	}
	return Tail(s)
}

// Email keeps the first letter of the mailbox and the domain.
func Email(value string) string {
	trimmed := strings.TrimSpace(value)
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return Tail(trimmed)
	}
	return trimmed[:1] + maskToken + trimmed[at:]
}

// Tail keeps the last four characters of a number.
func Tail(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}
