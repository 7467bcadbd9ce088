package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://Shop.example/catalog", "shop.example"},
		{"www stripped", "https://www.shop.example/", "shop.example"},
		{"bare host", "shop.example", "shop.example"},
		{"host with port", "http://shop.example:8080/list", "shop.example"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := pagesFetchedTotal
	Init()
	if pagesFetchedTotal != first || first == nil {
		t.Fatal("Init() should create collectors exactly once")
	}
}

func TestObservers(t *testing.T) {
	Init()

	ObservePage("https://observe.example/list", "ok", 2048)
	if val := testutil.ToFloat64(pagesFetchedTotal.WithLabelValues("observe.example", "ok")); val != 1 {
		t.Errorf("pages counter = %f; want 1", val)
	}
	if val := testutil.ToFloat64(pageBytesTotal.WithLabelValues("observe.example")); val != 2048 {
		t.Errorf("bytes counter = %f; want 2048", val)
	}

	before := testutil.ToFloat64(recordsExtractedTotal.WithLabelValues("generic"))
	ObserveRecords(crawler.StrategyGeneric, 3)
	ObserveRecords(crawler.StrategyGeneric, 0)
	if val := testutil.ToFloat64(recordsExtractedTotal.WithLabelValues("generic")) - before; val != 3 {
		t.Errorf("records delta = %f; want 3", val)
	}

	beforeAdded := testutil.ToFloat64(productsUpsertedTotal.WithLabelValues("added"))
	ObserveUpsert(crawler.UpsertResult{Added: 2, Updated: 5})
	if val := testutil.ToFloat64(productsUpsertedTotal.WithLabelValues("added")) - beforeAdded; val != 2 {
		t.Errorf("added delta = %f; want 2", val)
	}

	beforeJobs := testutil.ToFloat64(jobsTotal.WithLabelValues("failed"))
	ObserveJob(crawler.JobStatusFailed, 3*time.Second)
	if val := testutil.ToFloat64(jobsTotal.WithLabelValues("failed")) - beforeJobs; val != 1 {
		t.Errorf("jobs delta = %f; want 1", val)
	}
	if n := testutil.CollectAndCount(jobDurationSeconds); n != 1 {
		t.Errorf("duration histogram series = %d; want 1", n)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
