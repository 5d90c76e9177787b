package auth

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// The JWT secret is resolved once per process; set it before any test runs.
	os.Setenv("APP_JWT_SECRET", "0123456789abcdef0123456789abcdef0123456789abcdef")
	os.Exit(m.Run())
}
