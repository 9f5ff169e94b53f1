package models

import (
	"encoding/base64"
	"errors"
	"strconv"
)

var ErrInvalidCursor = errors.New("invalid cursor")

func DecodeCursor(cursor *string) (string, error) {
	decodedCursor := ""
	if cursor != nil {
		b, err := base64.StdEncoding.DecodeString(*cursor)
		if err != nil {
			return decodedCursor, err
		}
		decodedCursor = string(b)
	}
	return decodedCursor, nil
}

func EncodeCursor(cursor string) string {
	return base64.StdEncoding.EncodeToString([]byte(cursor))
}

// EncodeIDCursor encodes the last id of a keyset page. Zero encodes as "".
func EncodeIDCursor(id uint) string {
	if id == 0 {
		return ""
	}
	return EncodeCursor(strconv.FormatUint(uint64(id), 10))
}

// DecodeIDCursor decodes a keyset cursor. An empty cursor is the first page.
func DecodeIDCursor(cursor string) (uint, error) {
	if cursor == "" {
		return 0, nil
	}
	decoded, err := DecodeCursor(&cursor)
	if err != nil {
		return 0, ErrInvalidCursor
	}
	id, err := strconv.ParseUint(decoded, 10, 64)
	if err != nil {
		return 0, ErrInvalidCursor
	}
	return uint(id), nil
}
