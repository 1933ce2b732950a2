package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/wstore/internal/auth"
	"github.com/starford/wstore/internal/models"
)

type stubJournal struct {
	entries  []models.JournalEntry
	err      error
	gotPath  string
	gotLimit int
}

func (s *stubJournal) Recent(_ context.Context, path string, limit int) ([]models.JournalEntry, error) {
	s.gotPath, s.gotLimit = path, limit
	return s.entries, s.err
}

func adminRouter(t *testing.T, j JournalLister) http.Handler {
	t.Helper()
	gate, err := auth.NewGate(auth.Credential{Username: testUser, Password: testPass})
	if err != nil {
		t.Fatal(err)
	}
	return NewAdminRouter(gate, nil, j)
}

func TestHealthEndpoints(t *testing.T) {
	r := adminRouter(t, nil)
	for _, p := range []string{"/health/live", "/health/ready"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d", p, w.Code)
		}
	}
}

func TestJournalEndpoint(t *testing.T) {
	j := &stubJournal{entries: []models.JournalEntry{{ID: "1", Path: "a.txt", Op: models.OpCreated, Source: "http"}}}
	r := adminRouter(t, j)

	req := httptest.NewRequest(http.MethodGet, "/journal?path=a.txt&limit=5000", nil)
	req.SetBasicAuth(testUser, testPass)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if j.gotPath != "a.txt" || j.gotLimit != maxJournalLimit {
		t.Errorf("query = %q/%d", j.gotPath, j.gotLimit)
	}
	var resp JournalResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Op != models.OpCreated {
		t.Errorf("entries = %+v", resp.Entries)
	}
}

func TestJournalEndpointErrors(t *testing.T) {
	j := &stubJournal{err: errors.New("db closed")}
	r := adminRouter(t, j)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/journal", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/journal?limit=abc", nil)
	req.SetBasicAuth(testUser, testPass)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/journal", nil)
	req.SetBasicAuth(testUser, testPass)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("journal failure = %d", w.Code)
	}
}
