package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-docs-cache/internal/search"
	"github.com/stacklok/toolhive-docs-cache/internal/service"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
)

func TestGetAndValidateURLParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		paramValue string
		wantValue  string
		wantErrMsg string
	}{
		{
			name:       "plain id",
			paramValue: "getting-started",
			wantValue:  "getting-started",
		},
		{
			name:       "encoded slash",
			paramValue: "api%2Fauth",
			wantValue:  "api/auth",
		},
		{
			name:       "empty",
			paramValue: "",
			wantErrMsg: "id cannot be empty",
		},
		{
			name:       "whitespace",
			paramValue: "two%20words",
			wantErrMsg: "id cannot contain whitespace",
		},
		{
			name:       "bad encoding",
			paramValue: "bad%zz",
			wantErrMsg: "invalid URL encoding in id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.paramValue)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			got, err := GetAndValidateURLParam(req, "id")
			if tt.wantErrMsg != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrMsg, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, got)
		})
	}
}

func TestQueryParams(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet,
		"/?limit=5&bad=x&since=2026-01-02T03:04:05Z&maxAge=36h&when=yesterday", nil)

	n, ok, err := QueryInt(req, "limit")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, n)

	_, ok, err = QueryInt(req, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = QueryInt(req, "bad")
	assert.ErrorContains(t, err, "must be an integer")

	ts, ok, err := QueryTime(req, "since")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), ts)

	_, _, err = QueryTime(req, "when")
	assert.ErrorContains(t, err, "RFC3339")

	d, ok, err := QueryDuration(req, "maxAge")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 36*time.Hour, d)

	_, _, err = QueryDuration(req, "when")
	assert.ErrorContains(t, err, "must be a duration")
}

func TestStatusForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad limit", service.ErrInvalidArgument), http.StatusBadRequest},
		{fmt.Errorf("%w: nope", sources.ErrUnknownSource), http.StatusNotFound},
		{search.ErrNotCached, http.StatusNotFound},
		{service.ErrSchedulerUnavailable, http.StatusConflict},
		{service.ErrNotReady, http.StatusServiceUnavailable},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForError(tt.err), tt.err.Error())
	}
}

func TestWriteServiceError(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)

	rr := httptest.NewRecorder()
	WriteServiceError(rr, req, errors.New("secret path /var/lib/state"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body.Error)

	rr = httptest.NewRecorder()
	WriteServiceError(rr, req, fmt.Errorf("%w: invalid limit: 0", service.ErrInvalidArgument))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "invalid argument: invalid limit: 0", body.Error)
}
