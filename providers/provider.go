package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"shipping-gateway/models"
)

// Provider name constants; these key the fan-out result and error maps.
const (
	ProviderShippo     = "shippo"
	ProviderEasyPost   = "easypost"
	ProviderShipEngine = "shipengine"
	ProviderEasyship   = "easyship"
)

// providerTimeout bounds every single outbound call. The fan-out layer adds
// its own aggregate deadline on top.
const providerTimeout = 8 * time.Second

// ShippingProvider is the capability set every carrier-aggregator adapter
// implements. All calls are blocking network I/O bounded by ctx and the
// adapter's own per-call timeout.
type ShippingProvider interface {
	// Name returns the provider key, e.g. "shippo".
	Name() string

	// GetRates quotes the shipment with every carrier the provider reaches.
	// Zero applicable services is an empty slice, not an error.
	GetRates(ctx context.Context, from, to models.Address, parcel models.Parcel) ([]models.Rate, error)

	// PurchaseLabel commits the purchase of a rate previously returned by
	// GetRates on the same provider.
	PurchaseLabel(ctx context.Context, rateID, format string) (models.ShippingLabel, error)

	// ValidateAddress submits the address for carrier-aggregator
	// verification.
	ValidateAddress(ctx context.Context, address models.Address) (models.ValidationResult, error)
}

// ShipmentTracker is implemented by providers that expose tracking.
type ShipmentTracker interface {
	TrackShipment(ctx context.Context, carrier, trackingNumber string) (models.TrackingStatus, error)
}

// ConfigError reports a missing credential at adapter construction.
type ConfigError struct {
	Provider string
	Variable string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s API key not configured. Set %s", e.Provider, e.Variable)
}

// APIError is a non-2xx or malformed response from a provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// PurchaseError means the provider accepted the request but returned no
// usable label artifact.
type PurchaseError struct {
	Provider string
	Message  string
}

func (e *PurchaseError) Error() string {
	return fmt.Sprintf("%s label purchase failed: %s", e.Provider, e.Message)
}

// doJSON performs one JSON round trip against a provider API. A non-2xx
// response becomes an *APIError carrying the raw body.
func doJSON(ctx context.Context, client *http.Client, provider, method, url string, headers map[string]string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Provider: provider, StatusCode: resp.StatusCode, Body: string(respBytes)}
	}

	if out != nil {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
