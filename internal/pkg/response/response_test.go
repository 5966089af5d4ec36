package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lk2023060901/ai-search-backend/internal/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func run(fn func(c *gin.Context)) (*httptest.ResponseRecorder, Response) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	fn(c)

	var resp Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestResponses(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(c *gin.Context)
		status  int
		code    int
		message string
	}{
		{
			name:   "success with nil data",
			fn:     func(c *gin.Context) { Success(c, nil) },
			status: http.StatusOK,
			code:   apperrors.Success,
		},
		{
			name:    "bad request",
			fn:      func(c *gin.Context) { BadRequest(c, "query is required") },
			status:  http.StatusBadRequest,
			code:    apperrors.ErrInvalidParams,
			message: "Invalid parameters: query is required",
		},
		{
			name:    "app error",
			fn:      func(c *gin.Context) { HandleError(c, apperrors.New(apperrors.ErrSearchUnsupportedFormat, "csv")) },
			status:  http.StatusBadRequest,
			code:    apperrors.ErrSearchUnsupportedFormat,
			message: "Unsupported export format: csv",
		},
		{
			name:    "plain error",
			fn:      func(c *gin.Context) { HandleError(c, errors.New("boom")) },
			status:  http.StatusInternalServerError,
			code:    apperrors.ErrInternalServer,
			message: "Internal server error: boom",
		},
		{
			name:    "raw status",
			fn:      func(c *gin.Context) { Error(c, http.StatusServiceUnavailable, "down") },
			status:  http.StatusServiceUnavailable,
			code:    http.StatusServiceUnavailable,
			message: "down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := run(tt.fn)
			require.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.message, resp.Message)
			assert.NotNil(t, resp.Data)
		})
	}
}
