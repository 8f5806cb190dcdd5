//go:build !dev

package otp

func bypassCode() (string, bool) {
	return "", false
}
