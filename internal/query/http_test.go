package query

import (
	"net/http/httptest"
	"testing"

	"CoverLedger/internal/pricing"
)

func TestQuoteRejectsBadParams(t *testing.T) {
	qs := NewQueryService(nil, pricing.DefaultConfig(), nil)
	router := qs.Router()

	cases := []struct {
		name string
		url  string
	}{
		{"bad pool id", "/v1/pools/not-a-uuid/quote?duration_seconds=60&cover_tokens=100"},
		{"missing duration", "/v1/pools/e6f1c3a0-0000-0000-0000-000000000001/quote?cover_tokens=100"},
		{"hex amount", "/v1/pools/e6f1c3a0-0000-0000-0000-000000000001/quote?duration_seconds=60&cover_tokens=0xff"},
		{"bad group id", "/v1/mining/groups/first"},
		{"negative group id", "/v1/mining/groups/-1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", tc.url, nil))
			if rec.Code != 400 {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestRouterRejectsUnknownRoutes(t *testing.T) {
	qs := NewQueryService(nil, pricing.DefaultConfig(), nil)
	router := qs.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/positions", nil))
	if rec.Code != 404 {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestPageLimitClamped(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/pools?limit=10000", nil)
	if got := pageLimit(r); got != maxPageLimit {
		t.Errorf("expected %d, got %d", maxPageLimit, got)
	}

	r = httptest.NewRequest("GET", "/v1/pools", nil)
	if got := pageLimit(r); got != defaultPageLimit {
		t.Errorf("expected %d, got %d", defaultPageLimit, got)
	}
}
