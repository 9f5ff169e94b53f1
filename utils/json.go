package utils

import "encoding/json"

// Unmarshal JSON to generic struct
func UnmarshalFromJSON[T any](data []byte, output *T) error {
	return json.Unmarshal(data, output)
}

// EncodeStringMap stores a property map as a JSON column. A nil map is stored as NULL.
func EncodeStringMap(m map[string]string) []byte {
	if m == nil {
		return nil
	}
	b, _ := json.Marshal(m)
	return b
}

// DecodeStringMap reads a JSON property column. Invalid or empty input decodes to nil.
func DecodeStringMap(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
