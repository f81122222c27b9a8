package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		header   string
		wantKept bool
	}{
		{name: "GeneratedWhenMissing", header: ""},
		{name: "KeptWhenProvided", header: uuid.New().String(), wantKept: true},
		{name: "KeptForProviderStyleIDs", header: "evt_1Nx2kL.checkout", wantKept: true},
		{name: "ReplacedWhenTooLong", header: strings.Repeat("a", maxCorrelationIDLength+1)},
		{name: "ReplacedWhenItHasSpaces", header: "abc def"},
		{name: "ReplacedWhenItHasControlBytes", header: "abc\x01def"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(CorrelationID())
			var captured string
			router.GET("/test", func(c *gin.Context) {
				captured = c.GetString(CorrelationIDKey)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header[CorrelationIDHeader] = []string{tt.header}
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			respID := rr.Header().Get(CorrelationIDHeader)
			assert.Equal(t, respID, captured)
			if tt.wantKept {
				assert.Equal(t, tt.header, respID)
				return
			}
			_, err := uuid.Parse(respID)
			assert.NoError(t, err, "replacement id should be a UUID")
		})
	}
}

func TestGetCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("ReturnsIDFromContextIfExists", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(CorrelationIDKey, "corr-1")
		assert.Equal(t, "corr-1", GetCorrelationID(c))
	})

	t.Run("ReturnsEmptyStringIfNoIDInContext", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		assert.Empty(t, GetCorrelationID(c))
	})

	t.Run("ReturnsEmptyStringIfIDInContextIsNotString", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(CorrelationIDKey, 12345)
		assert.Empty(t, GetCorrelationID(c))
	})
}
