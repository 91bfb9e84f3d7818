package service

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// CursorPrefix tags history cursors so other opaque tokens are rejected
const CursorPrefix = "history:"

// DecodeCursor decodes a base64 history cursor into the offset it points at.
// The cursor format is: base64(history:<offset>)
// Returns 0 if the cursor is empty.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("failed to decode cursor: %w", err)
	}

	value, ok := strings.CutPrefix(string(decoded), CursorPrefix)
	if !ok {
		return 0, fmt.Errorf("invalid cursor format: expected %s<offset>", CursorPrefix)
	}

	offset, err := strconv.Atoi(value)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid cursor offset: %q", value)
	}
	return offset, nil
}

// EncodeCursor encodes a history offset into a base64 cursor string
func EncodeCursor(offset int) string {
	return base64.URLEncoding.EncodeToString([]byte(CursorPrefix + strconv.Itoa(offset)))
}
