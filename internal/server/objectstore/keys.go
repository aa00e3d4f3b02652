package objectstore

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxExtLen = 10

// NewStorageKey returns users/<userID>/<yyyy>/<mm>/<dd>/<uuid><ext>. The
// extension comes from filename and is kept only when it is short and
// alphanumeric.
func NewStorageKey(userID, filename string, now time.Time) string {
	return fmt.Sprintf("%s%04d/%02d/%02d/%s%s",
		UserPrefix(userID), now.Year(), int(now.Month()), now.Day(), uuid.New(), cleanExt(filename))
}

// UserPrefix is the key prefix every object owned by userID lives under.
func UserPrefix(userID string) string {
	return "users/" + userID + "/"
}

// OwnsKey reports whether key lies under userID's prefix.
func OwnsKey(userID, key string) bool {
	if userID == "" || strings.Contains(userID, "/") {
		return false
	}
	if path.Clean(key) != key {
		return false
	}
	return strings.HasPrefix(key, UserPrefix(userID)) && len(key) > len(UserPrefix(userID))
}

func cleanExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > maxExtLen {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
