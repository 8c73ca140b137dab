// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/url"
	"strings"
)

// NormalizeOrigin проверяет, что origin является абсолютным http(s) адресом без пути,
// и возвращает его без завершающего слэша.
func NormalizeOrigin(origin string) (string, bool) {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		return "", false
	}

	u, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", false
	}
	if u.Path != "" {
		return "", false
	}

	return u.Scheme + "://" + strings.ToLower(u.Host), true
}

// IsAllowedOrigin сообщает, разрешён ли origin для построения адресов возврата после оплаты.
// Пустой список разрешает любой корректный origin.
func IsAllowedOrigin(origin string, allowed []string) bool {
	normalized, ok := NormalizeOrigin(origin)
	if !ok {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if n, ok := NormalizeOrigin(a); ok && n == normalized {
			return true
		}
	}
	return false
}
