// Package util contains error predicates shared by the listener and
// session loops.
package util

// IsTempErr returns true if an error exports a
// Temporary() method that returns true.
func IsTempErr(err error) bool {
	type t interface {
		Temporary() bool
	}
	if err, ok := err.(t); ok {
		return err.Temporary()
	}
	return false
}

// IsTimeout returns true if an error exports a Timeout() method that
// returns true, as a read on a UDP socket does when its deadline
// expires.
func IsTimeout(err error) bool {
	type t interface {
		Timeout() bool
	}
	if err, ok := err.(t); ok {
		return err.Timeout()
	}
	return false
}
