package common

import "errors"

// ValidateNotEmpty returns an error if data is the empty string.
func ValidateNotEmpty(data, msg string) error {
	if data == "" {
		return errors.New(msg + ` must be specified`)
	}
	return nil
}

// ValidTransactionID reports whether id satisfies the 26-character,
// non-zero transaction id format emitted by telemetry records.
func ValidTransactionID(id string) bool {
	if len(id) != 26 {
		return false
	}
	allZero := true
	for _, r := range id {
		if r != '0' {
			allZero = false
			break
		}
	}
	return !allZero
}

// ByteSliceEqual reports whether two byte slices hold identical content.
func ByteSliceEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	if (a == nil) != (b == nil) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
