package providers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"shipping-gateway/providers"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newEasyPost(t *testing.T, url string) *providers.EasyPostProvider {
	t.Helper()
	p, err := providers.NewEasyPostProvider("ep_test_key", true, zap.NewNop())
	assert.NoError(t, err)
	p.BaseURL = url
	return p
}

func TestEasyPostGetRates_CarriesShipmentID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/shipments", r.URL.Path)
		assert.Equal(t, "Bearer ep_test_key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]any{
			"id": "shp_123",
			"rates": []map[string]any{
				{
					"id":            "rate_ep_1",
					"carrier":       "USPS",
					"service":       "Priority",
					"rate":          "7.33",
					"currency":      "USD",
					"delivery_days": 3,
				},
			},
		})
	}))
	defer srv.Close()

	p := newEasyPost(t, srv.URL)
	rates, err := p.GetRates(context.Background(), testAddress("From"), testAddress("To"), testParcel())
	assert.NoError(t, err)
	assert.Len(t, rates, 1)
	assert.Equal(t, "easypost", rates[0].Provider)
	assert.Equal(t, "shp_123", rates[0].ShipmentID)
	assert.Equal(t, 7.33, rates[0].Amount)
}

func TestEasyPostPurchaseLabel_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rates/rate_ep_1":
			json.NewEncoder(w).Encode(map[string]any{
				"id":          "rate_ep_1",
				"shipment_id": "shp_123",
			})
		case "/shipments/shp_123/buy":
			assert.Equal(t, http.MethodPost, r.Method)
			json.NewEncoder(w).Encode(map[string]any{
				"tracking_code": "EZ1000000001",
				"postage_label": map[string]string{
					"label_url": "https://easypost-files.s3.amazonaws.com/label.pdf",
				},
				"selected_rate": map[string]any{
					"carrier": "USPS", "service": "Priority", "rate": "7.33",
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p := newEasyPost(t, srv.URL)
	label, err := p.PurchaseLabel(context.Background(), "rate_ep_1", "PDF")
	assert.NoError(t, err)
	assert.Equal(t, "EZ1000000001", label.TrackingNumber)
	assert.Equal(t, "USPS", label.Carrier)
	assert.Equal(t, 7.33, label.Cost)
}

func TestEasyPostPurchaseLabel_NoPostageLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rates/rate_ep_2":
			json.NewEncoder(w).Encode(map[string]any{
				"id": "rate_ep_2", "shipment_id": "shp_456",
			})
		case "/shipments/shp_456/buy":
			json.NewEncoder(w).Encode(map[string]any{
				"tracking_code": "EZ2",
			})
		}
	}))
	defer srv.Close()

	p := newEasyPost(t, srv.URL)
	_, err := p.PurchaseLabel(context.Background(), "rate_ep_2", "PDF")
	assert.Error(t, err)
	var pe *providers.PurchaseError
	assert.ErrorAs(t, err, &pe)
}

func TestEasyPostValidateAddress_DegradesOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "internal"}`))
	}))
	defer srv.Close()

	p := newEasyPost(t, srv.URL)
	result, err := p.ValidateAddress(context.Background(), testAddress("Jane"))
	assert.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Len(t, result.Messages, 1)
}

func TestEasyPostValidateAddress_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/addresses", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"street1":     "215 CLAYTON ST",
			"city":        "SAN FRANCISCO",
			"state":       "CA",
			"zip":         "94117",
			"country":     "US",
			"residential": true,
			"verifications": map[string]any{
				"delivery": map[string]any{"success": true},
			},
		})
	}))
	defer srv.Close()

	p := newEasyPost(t, srv.URL)
	result, err := p.ValidateAddress(context.Background(), testAddress("Jane"))
	assert.NoError(t, err)
	assert.True(t, result.IsValid)
	if assert.NotNil(t, result.ValidatedAddress) {
		assert.True(t, result.ValidatedAddress.Residential())
	}
}

func TestEasyPostTrackShipment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trackers", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"tracking_code":     "EZ1000000001",
			"status":            "in_transit",
			"carrier":           "USPS",
			"est_delivery_date": "2026-08-04",
			"tracking_details": []map[string]any{
				{
					"datetime": "2026-08-01T08:00:00Z",
					"message":  "Arrived at facility",
					"tracking_location": map[string]string{
						"city": "Denver", "state": "CO",
					},
				},
			},
		})
	}))
	defer srv.Close()

	p := newEasyPost(t, srv.URL)
	status, err := p.TrackShipment(context.Background(), "USPS", "EZ1000000001")
	assert.NoError(t, err)
	assert.Equal(t, "in_transit", status.Status)
	assert.Equal(t, "Arrived at facility", status.StatusDetails)
	assert.Equal(t, "Denver, CO", status.Location)
}
