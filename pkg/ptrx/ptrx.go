// Package ptrx builds and reads the optional fields of request DTOs and rows.
package ptrx

import "time"

// To returns a pointer to a copy of v.
func To[T any](v T) *T {
	return &v
}

func Bool(v bool) *bool       { return &v }
func String(v string) *string { return &v }

// Time returns nil for the zero time, so unset timestamps stay NULL.
func Time(v time.Time) *time.Time {
	if v.IsZero() {
		return nil
	}
	return &v
}

// Value returns *v or the zero value when v is nil.
func Value[T any](v *T) T {
	if v != nil {
		return *v
	}
	var zero T
	return zero
}

// ValueOr returns *v or def when v is nil.
func ValueOr[T any](v *T, def T) T {
	if v != nil {
		return *v
	}
	return def
}
