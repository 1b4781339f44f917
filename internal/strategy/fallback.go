package strategy

import "fmt"

// attempt runs fn, converting a panic into an error.
func attempt[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out, err = zero, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// withFallback runs primary and, if it fails for any reason, fallback. primaryErr is
// the swallowed failure; err is only ever the fallback's.
func withFallback[T any](primary, fallback func() (T, error)) (out T, primaryErr error, err error) {
	out, primaryErr = attempt(primary)
	if primaryErr == nil {
		return out, nil, nil
	}
	out, err = fallback()
	return out, primaryErr, err
}
