package chat

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var chatIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// NewChatID returns a fresh opaque chat ID derived from the current time,
// the user and random bytes.
func NewChatID(userID string) string {
	seed := strconv.FormatInt(time.Now().UnixNano(), 10) + userID + uuid.NewString()
	sum := md5.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// ValidChatID reports whether id has the shape of a chat ID.
func ValidChatID(id string) bool {
	return chatIDPattern.MatchString(id)
}
