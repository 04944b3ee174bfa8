package lookup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dukerupert/pantry/internal/model"
)

type fakeCatalog struct {
	mu      sync.Mutex
	entries map[string]model.CatalogEntry
	getErr  error
	putErr  error
	puts    int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{entries: make(map[string]model.CatalogEntry)}
}

func (c *fakeCatalog) Get(ctx context.Context, code string) (*model.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	e, ok := c.entries[code]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (c *fakeCatalog) Put(ctx context.Context, e model.CatalogEntry) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	if c.putErr != nil {
		return false, c.putErr
	}
	if _, ok := c.entries[e.Code]; ok {
		return false, nil
	}
	c.entries[e.Code] = e
	return true, nil
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *countingObserver) LookupResult(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, status int, body string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestLookupCatalogHit(t *testing.T) {
	srv, calls := serve(t, http.StatusOK, `{"description":"Should not be used"}`)
	catalog := newFakeCatalog()
	catalog.entries["7891000100103"] = model.CatalogEntry{Code: "7891000100103", Name: "Leite Condensado", Brand: "Moça"}

	s := NewService(catalog, NewBrasilAPI(srv.URL), nil, testLogger())
	got := s.Lookup(context.Background(), "7891000100103")

	if got.Name != "Leite Condensado" || got.Brand != "Moça" || got.Source != "catalog" {
		t.Errorf("got %+v", got)
	}
	if *calls != 0 {
		t.Errorf("upstream calls = %d, want 0", *calls)
	}
}

func TestLookupBrasilAPIWritesCatalog(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `{"description":"LEITE CONDENSADO MOCA 395G","ncm":"04029900"}`)
	catalog := newFakeCatalog()
	obs := &countingObserver{}

	s := NewService(catalog, NewBrasilAPI(srv.URL), obs, testLogger())
	got := s.Lookup(context.Background(), "7891000100103")
	s.Wait()

	if got.Name != "LEITE CONDENSADO MOCA 395G" || got.Source != "brasilapi" {
		t.Errorf("got %+v", got)
	}
	if got.Brand != PlaceholderBrand {
		t.Errorf("brand = %q, want %q", got.Brand, PlaceholderBrand)
	}
	e, ok := catalog.entries["7891000100103"]
	if !ok {
		t.Fatal("expected catalog entry to be written")
	}
	if e.NCM != "04029900" {
		t.Errorf("ncm = %q, want 04029900", e.NCM)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "upstream" {
		t.Errorf("outcomes = %v", obs.outcomes)
	}
}

func TestLookupOpenFoodFacts(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `{"status":1,"product":{"product_name":"Nutella","brands":"Ferrero"}}`)

	s := NewService(nil, NewOpenFoodFacts(srv.URL), nil, testLogger())
	got := s.Lookup(context.Background(), "3017620422003")

	if got.Name != "Nutella" || got.Brand != "Ferrero" || got.Source != "openfoodfacts" {
		t.Errorf("got %+v", got)
	}
}

func TestLookupFallsBackToPlaceholder(t *testing.T) {
	tests := []struct {
		name   string
		source func(url string) Source
		status int
		body   string
	}{
		{"off not found status", func(u string) Source { return NewOpenFoodFacts(u) }, http.StatusOK, `{"status":0}`},
		{"off malformed", func(u string) Source { return NewOpenFoodFacts(u) }, http.StatusOK, `{"status":`},
		{"brasilapi 404", func(u string) Source { return NewBrasilAPI(u) }, http.StatusNotFound, `{"message":"not found"}`},
		{"brasilapi 500", func(u string) Source { return NewBrasilAPI(u) }, http.StatusInternalServerError, ``},
		{"brasilapi empty description", func(u string) Source { return NewBrasilAPI(u) }, http.StatusOK, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := serve(t, tt.status, tt.body)
			catalog := newFakeCatalog()

			s := NewService(catalog, tt.source(srv.URL), nil, testLogger())
			got := s.Lookup(context.Background(), "7891000100103")
			s.Wait()

			if got != Placeholder() {
				t.Errorf("got %+v, want placeholder", got)
			}
			if catalog.puts != 0 {
				t.Errorf("catalog puts = %d, want 0", catalog.puts)
			}
		})
	}
}

func TestLookupNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewService(newFakeCatalog(), NewBrasilAPI(url), nil, testLogger())
	if got := s.Lookup(context.Background(), "7891000100103"); got != Placeholder() {
		t.Errorf("got %+v, want placeholder", got)
	}
}

func TestLookupCatalogErrorsDoNotBlock(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `{"description":"Arroz"}`)
	catalog := newFakeCatalog()
	catalog.getErr = errors.New("read failed")
	catalog.putErr = errors.New("write failed")

	s := NewService(catalog, NewBrasilAPI(srv.URL), nil, testLogger())
	got := s.Lookup(context.Background(), "7891000100103")
	s.Wait()

	if got.Name != "Arroz" {
		t.Errorf("name = %q, want Arroz", got.Name)
	}
}

func TestNewSource(t *testing.T) {
	if s, err := NewSource("brasilapi", ""); err != nil || s.Name() != "brasilapi" {
		t.Errorf("brasilapi: %v %v", s, err)
	}
	if s, err := NewSource("openfoodfacts", ""); err != nil || s.Name() != "openfoodfacts" {
		t.Errorf("openfoodfacts: %v %v", s, err)
	}
	if _, err := NewSource("nope", ""); err == nil {
		t.Error("expected error for unknown provider")
	}
}
