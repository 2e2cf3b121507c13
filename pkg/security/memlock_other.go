//go:build !linux && !darwin

package security

import "errors"

var errMlockUnsupported = errors.New("mlock not supported on this platform")

func lockMemory(b []byte) error   { return errMlockUnsupported }
func unlockMemory(b []byte) error { return nil }
