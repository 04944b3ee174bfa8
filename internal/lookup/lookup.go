// Package lookup resolves barcodes to product names. The shared catalog is
// consulted first; on a miss the configured upstream API is called and its
// answer is written back to the catalog in the background.
package lookup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/pantry/internal/apperr"
	"github.com/dukerupert/pantry/internal/model"
)

// Placeholders returned when nothing better is known.
const (
	PlaceholderName  = "New item"
	PlaceholderBrand = "Generic"
)

const catalogWriteTimeout = 5 * time.Second

// ErrNotFound is returned by a Source that has no record for a code.
var ErrNotFound = errors.New("product not found")

type ProductInfo struct {
	Name   string `json:"name"`
	Brand  string `json:"brand"`
	Source string `json:"source"`
}

// Product is what an upstream source knows about a code.
type Product struct {
	Name  string
	Brand string
	NCM   string
}

// Source is an upstream product API.
type Source interface {
	Name() string
	Fetch(ctx context.Context, code string) (*Product, error)
}

// Catalog is the shared, write-once product cache.
type Catalog interface {
	Get(ctx context.Context, code string) (*model.CatalogEntry, error)
	Put(ctx context.Context, e model.CatalogEntry) (bool, error)
}

// Observer receives lookup outcomes; it may be nil.
type Observer interface {
	LookupResult(outcome string)
}

// Service implements shared-catalog-first product lookup.
type Service struct {
	catalog  Catalog
	source   Source
	observer Observer
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewService(catalog Catalog, source Source, observer Observer, logger *slog.Logger) *Service {
	return &Service{
		catalog:  catalog,
		source:   source,
		observer: observer,
		logger:   logger,
	}
}

// Placeholder is the ProductInfo returned when a lookup fails.
func Placeholder() ProductInfo {
	return ProductInfo{Name: PlaceholderName, Brand: PlaceholderBrand, Source: "placeholder"}
}

// Lookup never fails: any catalog, network or decoding problem yields the
// placeholder so the caller can fall back to manual entry.
func (s *Service) Lookup(ctx context.Context, code string) ProductInfo {
	if s.catalog != nil {
		entry, err := s.catalog.Get(ctx, code)
		if err != nil {
			s.logger.Warn("catalog read failed", "code", code, "error", apperr.Lookup("catalog get", err))
		} else if entry != nil {
			s.observe("catalog")
			return withDefaults(ProductInfo{Name: entry.Name, Brand: entry.Brand, Source: "catalog"})
		}
	}

	if s.source == nil {
		s.observe("placeholder")
		return Placeholder()
	}

	p, err := s.source.Fetch(ctx, code)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("product lookup failed", "code", code, "source", s.source.Name(), "error", apperr.Lookup("fetch", err))
		}
		s.observe("placeholder")
		return Placeholder()
	}

	info := withDefaults(ProductInfo{Name: p.Name, Brand: p.Brand, Source: s.source.Name()})
	s.observe("upstream")
	if s.catalog != nil {
		s.saveAsync(code, info, p.NCM)
	}
	return info
}

// saveAsync writes an upstream answer to the catalog without holding up the
// caller. The request context is not used since it ends with the request.
func (s *Service) saveAsync(code string, info ProductInfo, ncm string) {
	entry := model.CatalogEntry{
		Code:      code,
		Name:      info.Name,
		Brand:     info.Brand,
		NCM:       ncm,
		Source:    info.Source,
		CreatedAt: time.Now(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), catalogWriteTimeout)
		defer cancel()

		if _, err := s.catalog.Put(ctx, entry); err != nil {
			s.logger.Warn("catalog write failed", "code", code, "error", err)
		}
	}()
}

// Wait blocks until pending catalog writes finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.LookupResult(outcome)
	}
}

func withDefaults(info ProductInfo) ProductInfo {
	if info.Name == "" {
		info.Name = PlaceholderName
	}
	if info.Brand == "" {
		info.Brand = PlaceholderBrand
	}
	return info
}
