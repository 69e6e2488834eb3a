package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// SecretNamespace prefixes every secret key the CLI reads or writes.
const SecretNamespace = "giveaway/"

var (
	ErrInvalidSecretKey = errors.New("invalid secret key")
	ErrInvalidToken     = errors.New("invalid api token")
)

// SecretName returns the name below the namespace, so "giveaway/api_token"
// yields "api_token". Names are lowercase letters, digits and underscores.
func SecretName(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	name, ok := strings.CutPrefix(trimmed, SecretNamespace)
	if !ok || name == "" {
		return "", fmt.Errorf("%w %q: must look like %sname", ErrInvalidSecretKey, key, SecretNamespace)
	}

	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return "", fmt.Errorf("%w %q: name may only hold a-z, 0-9 and _", ErrInvalidSecretKey, key)
	}

	return name, nil
}

// NormalizeToken trims surrounding whitespace and rejects values that could
// not travel in an Authorization header.
func NormalizeToken(raw string) (string, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	for _, r := range token {
		if r > unicode.MaxASCII || unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", fmt.Errorf("%w: contains whitespace or non-ASCII characters", ErrInvalidToken)
		}
	}

	return token, nil
}
