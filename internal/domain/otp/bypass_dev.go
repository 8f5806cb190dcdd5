//go:build dev

package otp

// bypassCode is accepted for any transaction in development builds only
func bypassCode() (string, bool) {
	return "123456", true
}
