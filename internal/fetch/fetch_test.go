package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"lexserve/internal/documents"
)

func TestRateLimiter_SpacesCalls(t *testing.T) {
	rl := newRateLimiter(30 * time.Millisecond)
	start := time.Now()
	rl.Wait()
	rl.Wait()
	rl.Wait()
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("three calls completed in %s, want at least 60ms of spacing", elapsed)
	}
}

func TestDoWithBackoff_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	resp, err := doWithBackoff(context.Background(), func() (*http.Response, error) {
		return http.Get(srv.URL)
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	resp.Body.Close()
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDoWithBackoff_404IsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := doWithBackoff(context.Background(), func() (*http.Response, error) {
		return http.Get(srv.URL)
	})
	if err == nil {
		t.Fatalf("expected a permanent error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("404 should not be retried, got %d attempts", got)
	}
}

func TestFederalRegisterFetcher_ListAndFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/documents.json", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("conditions[publication_date][gte]"); got != "2025-01-01" {
			t.Errorf("missing start-date condition, got %q", got)
		}
		if got := q.Get("conditions[publication_date][lte]"); got != "2025-01-31" {
			t.Errorf("missing end-date condition, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{{"document_number": "2025-01234"}},
		})
	})
	mux.HandleFunc("/api/v1/documents/2025-01234.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"document_number":        "2025-01234",
			"title":                  "Strengthening the Thing",
			"executive_order_number": "14250",
			"signing_date":           "2025-01-18",
			"publication_date":       "2025-01-20",
			"raw_text_url":           "http://" + r.Host + "/raw/2025-01234",
			"html_url":               "https://www.federalregister.gov/d/2025-01234",
			"president":              map[string]string{"name": "Donald J. Trump"},
			"agencies":               []map[string]string{{"name": "Department of Energy"}},
		})
	})
	mux.HandleFunc("/raw/2025-01234", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "It is hereby ordered:\nSec. 1. Purpose. Test order body.")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFederalRegisterFetcher(srv.URL, srv.Client())
	f.limiter = newRateLimiter(0)

	start, _ := time.Parse("2006-01-02", "2025-01-01")
	end, _ := time.Parse("2006-01-02", "2025-01-31")
	ids, err := f.ListIDs(context.Background(), start, end)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != "2025-01234" {
		t.Fatalf("unexpected ids: %v", ids)
	}

	doc, err := f.Fetch(context.Background(), "2025-01234")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if doc.Type != documents.TypeOrder {
		t.Fatalf("doc type = %q", doc.Type)
	}
	meta, ok := doc.Metadata.(documents.OrderMetadata)
	if !ok {
		t.Fatalf("metadata type %T", doc.Metadata)
	}
	if meta.ExecutiveOrder != "14250" || meta.President != "Donald J. Trump" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if len(meta.Agencies) != 1 || meta.Agencies[0] != "Department of Energy" {
		t.Fatalf("unexpected agencies: %v", meta.Agencies)
	}
	if doc.Text == "" {
		t.Fatalf("expected raw text body")
	}
}

func TestCourtListenerFetcher_JoinsSubOpinionsAndCitation(t *testing.T) {
	mux := http.NewServeMux()
	var host string
	mux.HandleFunc("/api/rest/v4/clusters/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token test-token" {
			t.Errorf("missing auth header, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"id": 9506542}},
		})
	})
	mux.HandleFunc("/api/rest/v4/clusters/9506542/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":            9506542,
			"case_name":     "CFPB v. CFSA",
			"date_filed":    "2024-05-16",
			"docket_number": "22-448",
			"absolute_url":  "/opinion/9506542/",
			"sub_opinions":  []string{"http://" + host + "/op/1/", "http://" + host + "/op/2/"},
			"citations": []map[string]any{
				{"volume": 601, "reporter": "U.S.", "page": "416", "type": 1},
			},
		})
	})
	mux.HandleFunc("/op/1/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"plain_text": "Syllabus\n\nHeld: affirmed."})
	})
	mux.HandleFunc("/op/2/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"plain_text": "JUSTICE THOMAS delivered the opinion of the Court."})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	host = srv.Listener.Addr().String()

	f := NewCourtListenerFetcher(srv.URL, "test-token", srv.Client())
	f.limiter = newRateLimiter(0)

	ids, err := f.ListIDs(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != "9506542" {
		t.Fatalf("unexpected ids: %v", ids)
	}

	doc, err := f.Fetch(context.Background(), "9506542")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	meta, ok := doc.Metadata.(documents.OpinionMetadata)
	if !ok {
		t.Fatalf("metadata type %T", doc.Metadata)
	}
	if meta.Citation != "601 U.S. 416 (2024)" {
		t.Fatalf("citation = %q", meta.Citation)
	}
	for _, want := range []string{"Syllabus", "JUSTICE THOMAS delivered"} {
		if !strings.Contains(doc.Text, want) {
			t.Fatalf("joined text missing %q: %q", want, doc.Text)
		}
	}
}
