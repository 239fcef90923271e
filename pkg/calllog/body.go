package calllog

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// requestText renders a hook request body for storage.
func requestText(body any, maxBody int) (string, bool) {
	switch b := body.(type) {
	case nil:
		return "", false
	case string:
		return truncate(b, maxBody)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return truncate(fmt.Sprint(b), maxBody)
		}
		return truncate(string(data), maxBody)
	}
}

// truncate cuts s to at most limit bytes without splitting a UTF-8
// sequence.
func truncate(s string, limit int) (string, bool) {
	if limit <= 0 {
		return "", s != ""
	}
	if len(s) <= limit {
		return s, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
