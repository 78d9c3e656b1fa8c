// Package catalog talks to the internal product catalog service.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	internalhttp "github.com/channelsync/inventory-service/internal/http"
)

// VariantRef is one resolved internal SKU from the catalog service
type VariantRef struct {
	Sku       string `json:"sku"`
	VariantID string `json:"variantId"`
	Name      string `json:"name,omitempty"`
}

// Resolver resolves internal SKUs to variant ids. Unresolvable SKUs are
// simply absent from the result, not errors.
type Resolver interface {
	ResolveVariantsBySku(ctx context.Context, companyID string, skus []string) ([]VariantRef, error)
}

// HTTPResolver resolves variants against the catalog service's HTTP API
type HTTPResolver struct {
	client  *internalhttp.Client
	baseURL string
}

// NewHTTPResolver creates a catalog resolver for the given base URL
func NewHTTPResolver(client *internalhttp.Client, baseURL string) *HTTPResolver {
	return &HTTPResolver{client: client, baseURL: baseURL}
}

type resolveResponse struct {
	Variants []VariantRef `json:"variants"`
}

// ResolveVariantsBySku performs one batched lookup for all given SKUs
func (r *HTTPResolver) ResolveVariantsBySku(ctx context.Context, companyID string, skus []string) ([]VariantRef, error) {
	if len(skus) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(map[string]any{
		"companyId": companyID,
		"skus":      skus,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode catalog resolve request: %w", err)
	}

	endpoint, err := url.JoinPath(r.baseURL, "internal", "variants", "resolve")
	if err != nil {
		return nil, fmt.Errorf("invalid catalog base URL: %w", err)
	}

	body, err := r.client.PostJSON(ctx, endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("catalog resolver: %w", err)
	}

	var resp resolveResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("catalog resolver: failed to decode response: %w", err)
	}
	return resp.Variants, nil
}
