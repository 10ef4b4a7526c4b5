package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"shipping-gateway/models"

	"go.uber.org/zap"
)

const shipengineBaseURL = "https://api.shipengine.com/v1"

// ShipEngineProvider implements ShippingProvider against the ShipEngine API.
// ShipEngine requires the caller to name its connected carrier accounts on
// every rate request, so the adapter discovers them once and caches the ids
// for its lifetime.
type ShipEngineProvider struct {
	BaseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger

	mu         sync.Mutex
	carrierIDs []string // nil until the first successful discovery
}

// NewShipEngineProvider creates a ShipEngine adapter.
func NewShipEngineProvider(apiKey string, logger *zap.Logger) (*ShipEngineProvider, error) {
	if apiKey == "" {
		return nil, &ConfigError{Provider: ProviderShipEngine, Variable: "SHIPENGINE_API_KEY"}
	}
	logger.Info("Initialized ShipEngine client")
	return &ShipEngineProvider{
		BaseURL:    shipengineBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: providerTimeout},
		logger:     logger,
	}, nil
}

func (p *ShipEngineProvider) Name() string { return ProviderShipEngine }

// ---- ShipEngine API request/response structs ----

type shipengineAddress struct {
	Name          string `json:"name"`
	AddressLine1  string `json:"address_line1"`
	AddressLine2  string `json:"address_line2,omitempty"`
	CityLocality  string `json:"city_locality"`
	StateProvince string `json:"state_province"`
	PostalCode    string `json:"postal_code"`
	CountryCode   string `json:"country_code"`
	Phone         string `json:"phone,omitempty"`
}

type shipengineCarriersResponse struct {
	Carriers []struct {
		CarrierID string `json:"carrier_id"`
	} `json:"carriers"`
}

type shipenginePackage struct {
	Weight struct {
		Value float64 `json:"value"`
		Unit  string  `json:"unit"`
	} `json:"weight"`
	Dimensions struct {
		Length float64 `json:"length"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
		Unit   string  `json:"unit"`
	} `json:"dimensions"`
}

type shipengineRateRequest struct {
	RateOptions struct {
		CarrierIDs []string `json:"carrier_ids"`
	} `json:"rate_options"`
	Shipment struct {
		ShipTo   shipengineAddress   `json:"ship_to"`
		ShipFrom shipengineAddress   `json:"ship_from"`
		Packages []shipenginePackage `json:"packages"`
	} `json:"shipment"`
}

type shipengineMoney struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type shipengineRateResponse struct {
	RateResponse struct {
		Rates []struct {
			RateID                string          `json:"rate_id"`
			CarrierFriendlyName   string          `json:"carrier_friendly_name"`
			ServiceType           string          `json:"service_type"`
			ServiceCode           string          `json:"service_code"`
			ShippingAmount        shipengineMoney `json:"shipping_amount"`
			EstimatedDeliveryDays *int            `json:"estimated_delivery_days"`
		} `json:"rates"`
	} `json:"rate_response"`
}

type shipengineLabelRequest struct {
	LabelFormat string `json:"label_format"`
	LabelLayout string `json:"label_layout"`
}

type shipengineLabelResponse struct {
	TrackingNumber string            `json:"tracking_number"`
	CarrierID      string            `json:"carrier_id"`
	ServiceCode    string            `json:"service_code"`
	ShipmentCost   shipengineMoney   `json:"shipment_cost"`
	LabelDownload  map[string]string `json:"label_download"`
}

type shipengineValidateResult struct {
	Status   string `json:"status"`
	Messages []struct {
		Message string `json:"message"`
	} `json:"messages"`
	MatchedAddress    *shipengineValidatedAddress `json:"matched_address"`
	NormalizedAddress *shipengineValidatedAddress `json:"normalized_address"`
}

type shipengineValidatedAddress struct {
	AddressLine1                string `json:"address_line1"`
	AddressLine2                string `json:"address_line2"`
	CityLocality                string `json:"city_locality"`
	StateProvince               string `json:"state_province"`
	PostalCode                  string `json:"postal_code"`
	CountryCode                 string `json:"country_code"`
	AddressResidentialIndicator string `json:"address_residential_indicator"`
}

// ---- ShippingProvider implementation ----

// GetRates quotes the shipment against every connected carrier. An account
// with no connected carriers yields an empty slice and a logged warning
// rather than an error.
func (p *ShipEngineProvider) GetRates(ctx context.Context, from, to models.Address, parcel models.Parcel) ([]models.Rate, error) {
	carrierIDs := p.getCarrierIDs(ctx)
	if len(carrierIDs) == 0 {
		p.logger.Warn("ShipEngine: no connected carriers found")
		return []models.Rate{}, nil
	}

	var pkg shipenginePackage
	pkg.Weight.Value = parcel.Weight
	pkg.Weight.Unit = "pound"
	pkg.Dimensions.Length = parcel.Length
	pkg.Dimensions.Width = parcel.Width
	pkg.Dimensions.Height = parcel.Height
	pkg.Dimensions.Unit = "inch"

	var reqBody shipengineRateRequest
	reqBody.RateOptions.CarrierIDs = carrierIDs
	reqBody.Shipment.ShipTo = toShipengineAddress(to)
	reqBody.Shipment.ShipFrom = toShipengineAddress(from)
	reqBody.Shipment.Packages = []shipenginePackage{pkg}

	var resp shipengineRateResponse
	if err := p.doRequest(ctx, http.MethodPost, "/rates", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("shipengine GetRates: %w", err)
	}

	rates := make([]models.Rate, 0, len(resp.RateResponse.Rates))
	for _, r := range resp.RateResponse.Rates {
		carrier := r.CarrierFriendlyName
		if carrier == "" {
			carrier = "Unknown"
		}
		currency := r.ShippingAmount.Currency
		if currency == "" {
			currency = "USD"
		}
		rates = append(rates, models.Rate{
			ObjectID:      r.RateID,
			Provider:      ProviderShipEngine,
			Carrier:       carrier,
			ServiceName:   r.ServiceType,
			ServiceToken:  r.ServiceCode,
			Amount:        r.ShippingAmount.Amount,
			Currency:      currency,
			EstimatedDays: r.EstimatedDeliveryDays,
		})
	}

	p.logger.Info("Retrieved rates from ShipEngine", zap.Int("count", len(rates)))
	return rates, nil
}

// PurchaseLabel buys a label directly from a rate id.
func (p *ShipEngineProvider) PurchaseLabel(ctx context.Context, rateID, format string) (models.ShippingLabel, error) {
	reqBody := shipengineLabelRequest{
		LabelFormat: strings.ToLower(format),
		LabelLayout: "4x6",
	}

	var resp shipengineLabelResponse
	if err := p.doRequest(ctx, http.MethodPost, "/labels/rates/"+rateID, reqBody, &resp); err != nil {
		return models.ShippingLabel{}, fmt.Errorf("shipengine PurchaseLabel: %w", err)
	}

	labelURL := resp.LabelDownload[strings.ToLower(format)]
	if labelURL == "" {
		labelURL = resp.LabelDownload["pdf"]
	}
	if labelURL == "" {
		return models.ShippingLabel{}, &PurchaseError{Provider: ProviderShipEngine, Message: "no label download returned"}
	}

	carrier := resp.CarrierID
	if carrier == "" {
		carrier = "Unknown"
	}
	service := resp.ServiceCode
	if service == "" {
		service = "Unknown"
	}

	label := models.ShippingLabel{
		TrackingNumber: resp.TrackingNumber,
		LabelURL:       labelURL,
		Carrier:        carrier,
		Service:        service,
		Cost:           resp.ShipmentCost.Amount,
		Currency:       "USD",
		CreatedAt:      time.Now(),
	}

	p.logger.Info("ShipEngine label created", zap.String("tracking_number", label.TrackingNumber))
	return label, nil
}

// ValidateAddress maps ShipEngine's verified/warning/unverified statuses to
// a boolean and attaches the matched (or normalized) address when present.
func (p *ShipEngineProvider) ValidateAddress(ctx context.Context, address models.Address) (models.ValidationResult, error) {
	reqBody := []shipengineAddress{toShipengineAddress(address)}

	var resp []shipengineValidateResult
	if err := p.doRequest(ctx, http.MethodPost, "/addresses/validate", reqBody, &resp); err != nil {
		return models.ValidationResult{}, fmt.Errorf("shipengine ValidateAddress: %w", err)
	}
	if len(resp) == 0 {
		return models.ValidationResult{}, fmt.Errorf("shipengine ValidateAddress: no validation result returned")
	}

	r := resp[0]
	isValid := r.Status == "verified" || r.Status == "warning"

	messages := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Message != "" {
			messages = append(messages, m.Message)
		}
	}

	result := models.ValidationResult{
		IsValid:         isValid,
		Messages:        messages,
		OriginalAddress: address,
	}

	matched := r.MatchedAddress
	if matched == nil {
		matched = r.NormalizedAddress
	}
	if matched != nil {
		residential := matched.AddressResidentialIndicator == "yes"
		result.ValidatedAddress = &models.Address{
			Name:          address.Name,
			Street1:       matched.AddressLine1,
			Street2:       matched.AddressLine2,
			City:          matched.CityLocality,
			State:         matched.StateProvince,
			Zip:           matched.PostalCode,
			Country:       matched.CountryCode,
			Phone:         address.Phone,
			Email:         address.Email,
			IsResidential: &residential,
		}
	}

	if !isValid {
		p.logger.Warn("ShipEngine address validation failed", zap.String("status", r.Status))
	}
	return result, nil
}

// ---- helpers ----

// getCarrierIDs returns the connected carrier ids, discovering them on
// first use. Discovery failure is tolerated: the empty result makes
// GetRates return no rates instead of failing the fan-out. The lock only
// prevents duplicate discovery calls; a lost race costs one extra request.
func (p *ShipEngineProvider) getCarrierIDs(ctx context.Context) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.carrierIDs != nil {
		return p.carrierIDs
	}

	var resp shipengineCarriersResponse
	if err := p.doRequest(ctx, http.MethodGet, "/carriers", nil, &resp); err != nil {
		p.logger.Warn("Failed to fetch ShipEngine carriers", zap.Error(err))
		return nil
	}

	ids := make([]string, 0, len(resp.Carriers))
	for _, c := range resp.Carriers {
		if c.CarrierID != "" {
			ids = append(ids, c.CarrierID)
		}
	}
	p.carrierIDs = ids
	p.logger.Info("Found connected ShipEngine carriers", zap.Int("count", len(ids)))
	return ids
}

func (p *ShipEngineProvider) doRequest(ctx context.Context, method, path string, body, out any) error {
	headers := map[string]string{"API-Key": p.apiKey}
	return doJSON(ctx, p.httpClient, ProviderShipEngine, method, p.BaseURL+path, headers, body, out)
}

func toShipengineAddress(a models.Address) shipengineAddress {
	return shipengineAddress{
		Name:          a.Name,
		AddressLine1:  a.Street1,
		AddressLine2:  a.Street2,
		CityLocality:  a.City,
		StateProvince: a.State,
		PostalCode:    a.Zip,
		CountryCode:   a.Country,
		Phone:         a.Phone,
	}
}
