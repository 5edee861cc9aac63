package report

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetAllReports_DecodesMixedIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reports" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(`[
			{"id": "a1", "title": "Lámpara apagada", "category": "Luminarias",
			 "coordinates": {"latitude": 20.14, "longitude": -98.339}, "reportedAtTimestamp": 1700000000000},
			{"id": 42, "title": "Bache", "category": "Obras Públicas",
			 "coordinates": {"latitude": 20.15, "longitude": -98.34}, "reportedAtTimestamp": 1700000001000}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 0, nil)
	reports, err := c.GetAllReports(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("GetAllReports: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].ID != "a1" || reports[1].ID != "42" {
		t.Fatalf("unexpected ids: %q %q", reports[0].ID, reports[1].ID)
	}
	if reports[1].Coordinates.Latitude != 20.15 {
		t.Fatalf("unexpected latitude %v", reports[1].Coordinates.Latitude)
	}
	if reports[0].ReportedAt().UnixMilli() != 1700000000000 {
		t.Fatalf("unexpected reportedAt %v", reports[0].ReportedAt())
	}
}

func TestGetAllReports_SendsFilter(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 600, nil)
	if _, err := c.GetAllReports(context.Background(), Filter{Category: "Limpieza", Status: "Urgente"}); err != nil {
		t.Fatalf("GetAllReports: %v", err)
	}
	if query != "category=Limpieza&status=Urgente" {
		t.Fatalf("unexpected query %q", query)
	}
}

func TestGetAllReports_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("x", 500), http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0, nil)
	_, err := c.GetAllReports(context.Background(), Filter{})
	if err == nil {
		t.Fatal("expected error on 502")
	}
	if !strings.Contains(err.Error(), "502") || !strings.HasSuffix(err.Error(), "...") {
		t.Fatalf("unexpected error %q", err)
	}
}

func TestIDUnmarshal_Invalid(t *testing.T) {
	var id ID
	if err := id.UnmarshalJSON([]byte(`{}`)); err == nil {
		t.Fatal("expected error for object id")
	}
}
