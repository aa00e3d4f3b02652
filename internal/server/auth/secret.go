package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/dmitrijs2005/scanvault/internal/common"
)

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, common.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(common.BearerPrefix):])
	return token, token != ""
}

// WorkerSecretMatches checks the worker trigger header in constant time.
func WorkerSecretMatches(header, secret string) bool {
	got, ok := BearerToken(header)
	if !ok || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}
