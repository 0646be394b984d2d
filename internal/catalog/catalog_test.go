package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"bidsmirror/internal/config"
)

func ids(units []Unit) string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.ID
	}
	return strings.Join(out, ",")
}

func TestSortNumeric(t *testing.T) {
	units := []Unit{{ID: "000100"}, {ID: "2"}, {ID: "abc"}, {ID: "000010"}, {ID: "10"}, {ID: "000003"}}
	Sort(units)
	if got := ids(units); got != "2,000003,000010,10,000100,abc" {
		t.Fatalf("sorted = %s", got)
	}
}

func TestDedupe(t *testing.T) {
	units := Dedupe([]Unit{{ID: "1"}, {ID: "2", Label: "a"}, {ID: "1"}, {ID: "2", Label: "b"}})
	if got := ids(units); got != "1,2,2" {
		t.Fatalf("deduped = %s", got)
	}
}

func TestDandiSourcePaginates(t *testing.T) {
	var srv *httptest.Server
	var hits atomic.Int32
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/api/dandisets/" {
			http.NotFound(w, r)
			return
		}
		page := map[string]any{}
		switch r.URL.Query().Get("page") {
		case "":
			if r.URL.Query().Get("page_size") != "2" {
				t.Errorf("page_size = %q", r.URL.Query().Get("page_size"))
			}
			page["next"] = srv.URL + "/api/dandisets/?page=2&page_size=2"
			page["results"] = []map[string]string{{"identifier": "000026"}, {"identifier": "000003"}}
		case "2":
			page["next"] = nil
			page["results"] = []map[string]string{{"identifier": "000004"}}
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	src := NewDandiSource(config.Catalog{BaseURL: srv.URL + "/api/", PageSize: 2, RequestTimeout: 5})
	units, err := src.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := ids(units); got != "000026,000003,000004" {
		t.Fatalf("units = %s", got)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits = %d", hits.Load())
	}
}

func TestDandiSourceRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"next":null,"results":[{"identifier":"000001"}]}`))
	}))
	defer srv.Close()

	src := NewDandiSource(config.Catalog{BaseURL: srv.URL, RequestTimeout: 5})
	var slept []time.Duration
	src.sleeper = func(d time.Duration) { slept = append(slept, d) }

	units, err := src.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(units) != 1 || len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("units = %v, slept = %v", units, slept)
	}
}

func TestDandiSourceFailsOnClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	src := NewDandiSource(config.Catalog{BaseURL: srv.URL, RequestTimeout: 5})
	src.sleeper = func(time.Duration) { t.Fatal("client errors must not be retried") }
	if _, err := src.List(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "units.yaml")
	content := "units:\n  - id: \"000026\"\n  - id: \"000003\"\n    label: nwb2bids-0.6\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	units, err := NewFileSource(path).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(units) != 2 || units[1].ID != "000003" || units[1].Label != "nwb2bids-0.6" {
		t.Fatalf("units = %+v", units)
	}

	if err := os.WriteFile(path, []byte("units:\n  - label: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileSource(path).List(context.Background()); err == nil {
		t.Fatal("expected error for entry without id")
	}
}

func TestNewSource(t *testing.T) {
	cfg := config.Default()
	src, err := NewSource(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*DandiSource); !ok {
		t.Fatalf("default source = %T", src)
	}
	cfg.Catalog.Source = config.CatalogSourceFile
	cfg.Catalog.File = "units.yaml"
	src, err = NewSource(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*FileSource); !ok {
		t.Fatalf("file source = %T", src)
	}
	cfg.Catalog.Source = "ftp"
	if _, err := NewSource(&cfg); err == nil {
		t.Fatal("expected error for unknown source")
	}
}
