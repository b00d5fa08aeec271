package common

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestRequestID_Generated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())

	var seen string
	router.GET("/", func(c *gin.Context) {
		seen = GetRequestID(c)
		c.Status(http.StatusOK)
	})

	req, _ := http.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
}

func TestRequestID_Propagated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestValidationError(t *testing.T) {
	v := NewValidationError()
	assert.NoError(t, v.OrNil())

	v.Add("title", "required")
	v.Add("title", "too long")
	v.Add("text", "required")

	err := fmt.Errorf("create post: %w", v.OrNil())
	got, ok := AsValidation(err)
	assert.True(t, ok)
	assert.Equal(t, "required", got.Fields["title"])
	assert.Equal(t, "invalid input: text: required; title: required", got.Error())
}

func TestNotFoundOr(t *testing.T) {
	assert.ErrorIs(t, NotFoundOr(gorm.ErrRecordNotFound), ErrNotFound)

	other := errors.New("boom")
	assert.Equal(t, other, NotFoundOr(other))
	assert.NoError(t, NotFoundOr(nil))
}
