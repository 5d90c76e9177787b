package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func requestIDRouter() (*gin.Engine, *string) {
	var seen string
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		seen = c.GetString(RequestIDKey)
		c.Status(http.StatusOK)
	})
	return router, &seen
}

func TestRequestID_GeneratedWhenAbsent(t *testing.T) {
	router, seen := requestIDRouter()

	rec := doRequest(router, "GET", "/ping", nil)

	echoed := rec.Header().Get(RequestIDHeader)
	if echoed == "" {
		t.Fatal("response should carry X-Request-ID")
	}
	if _, err := uuid.Parse(echoed); err != nil {
		t.Errorf("generated id %q is not a UUID: %v", echoed, err)
	}
	if *seen != echoed {
		t.Errorf("context id %q != response header %q", *seen, echoed)
	}
}

func TestRequestID_InboundHeaderReused(t *testing.T) {
	router, seen := requestIDRouter()

	rec := doRequest(router, "GET", "/ping", map[string]string{RequestIDHeader: "upstream-42"})

	if got := rec.Header().Get(RequestIDHeader); got != "upstream-42" {
		t.Errorf("echoed id = %q, want upstream-42", got)
	}
	if *seen != "upstream-42" {
		t.Errorf("context id = %q, want upstream-42", *seen)
	}
}
