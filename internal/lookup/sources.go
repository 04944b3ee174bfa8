package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	BrasilAPIURL     = "https://brasilapi.com.br/api/ean/v1"
	OpenFoodFactsURL = "https://world.openfoodfacts.org/api/v2/product"
)

const requestTimeout = 10 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// NewSource returns the upstream for a provider name. An empty baseURL
// selects the provider's public endpoint.
func NewSource(provider, baseURL string) (Source, error) {
	switch provider {
	case "brasilapi":
		return NewBrasilAPI(baseURL), nil
	case "openfoodfacts":
		return NewOpenFoodFacts(baseURL), nil
	default:
		return nil, fmt.Errorf("unknown lookup provider %q", provider)
	}
}

// BrasilAPI queries the BrasilAPI EAN endpoint.
type BrasilAPI struct {
	client  *http.Client
	baseURL string
}

func NewBrasilAPI(baseURL string) *BrasilAPI {
	if baseURL == "" {
		baseURL = BrasilAPIURL
	}
	return &BrasilAPI{client: newHTTPClient(), baseURL: strings.TrimRight(baseURL, "/")}
}

func (b *BrasilAPI) Name() string { return "brasilapi" }

type brasilAPIResponse struct {
	Description string `json:"description"`
	Brand       string `json:"brand"`
	NCM         string `json:"ncm"`
}

func (b *BrasilAPI) Fetch(ctx context.Context, code string) (*Product, error) {
	var resp brasilAPIResponse
	status, err := getJSON(ctx, b.client, b.baseURL+"/"+url.PathEscape(code), &resp)
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("brasilapi: %w", err)
	}
	if resp.Description == "" {
		return nil, ErrNotFound
	}
	return &Product{Name: resp.Description, Brand: resp.Brand, NCM: resp.NCM}, nil
}

// OpenFoodFacts queries the Open Food Facts product API.
type OpenFoodFacts struct {
	client  *http.Client
	baseURL string
}

func NewOpenFoodFacts(baseURL string) *OpenFoodFacts {
	if baseURL == "" {
		baseURL = OpenFoodFactsURL
	}
	return &OpenFoodFacts{client: newHTTPClient(), baseURL: strings.TrimRight(baseURL, "/")}
}

func (o *OpenFoodFacts) Name() string { return "openfoodfacts" }

type openFoodFactsResponse struct {
	Status  int `json:"status"`
	Product struct {
		ProductName string `json:"product_name"`
		Brands      string `json:"brands"`
	} `json:"product"`
}

func (o *OpenFoodFacts) Fetch(ctx context.Context, code string) (*Product, error) {
	var resp openFoodFactsResponse
	status, err := getJSON(ctx, o.client, o.baseURL+"/"+url.PathEscape(code)+".json", &resp)
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("openfoodfacts: %w", err)
	}
	if resp.Status != 1 {
		return nil, ErrNotFound
	}
	return &Product{Name: resp.Product.ProductName, Brand: resp.Product.Brands}, nil
}

// getJSON performs a GET and decodes a 200 response into v. The status code
// is returned whenever a response was received.
func getJSON(ctx context.Context, client *http.Client, rawURL string, v any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
