package driver

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

const autoKeyword = "auto"

// Setting is a control value that is either left to the device ("auto") or set manually.
// The zero value is auto. In JSON a Setting is either the string "auto", null or a value.
type Setting[T any] struct {
	value  T
	manual bool
}

// Auto returns a setting left to the device.
func Auto[T any]() Setting[T] {
	return Setting[T]{}
}

// Manual returns a setting fixed to v.
func Manual[T any](v T) Setting[T] {
	return Setting[T]{value: v, manual: true}
}

// IsAuto reports whether the device chooses the value.
func (s Setting[T]) IsAuto() bool {
	return !s.manual
}

// Get returns the manual value and whether one is set.
func (s Setting[T]) Get() (T, bool) {
	return s.value, s.manual
}

// Or returns the manual value, or def when auto.
func (s Setting[T]) Or(def T) T {
	if s.manual {
		return s.value
	}
	return def
}

func (s Setting[T]) String() string {
	if !s.manual {
		return autoKeyword
	}
	return fmt.Sprint(s.value)
}

// MarshalJSON encodes auto settings as "auto".
func (s Setting[T]) MarshalJSON() ([]byte, error) {
	if !s.manual {
		return json.Marshal(autoKeyword)
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON accepts "auto", null or a value of the setting's type.
func (s *Setting[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = Setting[T]{}
		return nil
	}
	var keyword string
	if err := json.Unmarshal(trimmed, &keyword); err == nil {
		if keyword == autoKeyword {
			*s = Setting[T]{}
			return nil
		}
		return errors.Errorf("invalid setting %q, expected %q or a value", keyword, autoKeyword)
	}
	var v T
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return errors.Wrapf(err, "invalid setting %s", string(trimmed))
	}
	*s = Manual(v)
	return nil
}
