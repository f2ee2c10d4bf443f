package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var messageKeyRegex = regexp.MustCompile(`^([a-z-]+)_[0-9a-f]{16}$`)

// MessageKey derives a stable id for a message from its kind and update time. Messages without a
// time fall back to the content so keys stay stable across re-renders.
func MessageKey(kind DisplayKind, at *time.Time, content string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	if at != nil {
		h.Write([]byte(at.UTC().Format(time.RFC3339Nano)))
	} else {
		h.Write([]byte(content))
	}
	return fmt.Sprintf("%s_%s", kind, hex.EncodeToString(h.Sum(nil))[:16])
}

func ValidateMessageKey(key string) bool {
	return messageKeyRegex.MatchString(key)
}

// ParseMessageKeyKind returns the kind prefix of a key.
func ParseMessageKeyKind(key string) (DisplayKind, error) {
	if !ValidateMessageKey(key) {
		return "", fmt.Errorf("invalid message key: %s", key)
	}
	return DisplayKind(key[:strings.LastIndexByte(key, '_')]), nil
}
