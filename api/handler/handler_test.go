package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/botwatch/models"
)

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{models.ErrCodeInvalidInput, http.StatusBadRequest},
		{models.ErrCodeUnauthorized, http.StatusUnauthorized},
		{models.ErrCodeNotFound, http.StatusNotFound},
		{models.ErrCodeNoPosts, http.StatusNotFound},
		{models.ErrCodeNotProfile, http.StatusUnprocessableEntity},
		{models.ErrCodeRateLimited, http.StatusTooManyRequests},
		{models.ErrCodeNavigation, http.StatusBadGateway},
		{models.ErrCodeRemoteService, http.StatusBadGateway},
		{models.ErrCodeQueueFull, http.StatusServiceUnavailable},
		{models.ErrCodeTimeout, http.StatusGatewayTimeout},
		{models.ErrCodeBrowserCrash, http.StatusInternalServerError},
		{models.ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, mapErrorToStatus(models.NewError(tt.code, "", nil)))
		})
	}
}

func TestResolveProfile(t *testing.T) {
	tests := []struct {
		name       string
		req        models.ScrapeRequest
		wantURL    string
		wantHandle string
		wantCode   string
	}{
		{"url", models.ScrapeRequest{URL: "https://x.com/jack"}, "https://x.com/jack", "jack", ""},
		{"url overrides handle", models.ScrapeRequest{URL: "https://x.com/jack", Handle: "other"}, "https://x.com/jack", "jack", ""},
		{"handle", models.ScrapeRequest{Handle: "@jack"}, "https://x.com/jack", "jack", ""},
		{"non-profile url", models.ScrapeRequest{URL: "https://example.com/jack"}, "", "", models.ErrCodeNotProfile},
		{"invalid handle", models.ScrapeRequest{Handle: "way_too_long_handle_x"}, "", "", models.ErrCodeInvalidInput},
		{"nothing", models.ScrapeRequest{}, "", "", models.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			got, err := resolveProfile(&req, "https://x.com/")
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, models.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, got)
			assert.Equal(t, tt.wantHandle, req.Handle)
		})
	}
}
