package middleware

import (
	"os"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("APP_JWT_SECRET", "middleware-test-secret-0123456789abcdef")
	os.Exit(m.Run())
}
