package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"shipping-gateway/models"

	"go.uber.org/zap"
)

const shippoBaseURL = "https://api.goshippo.com"

// ShippoProvider implements ShippingProvider against the Shippo API.
type ShippoProvider struct {
	BaseURL    string
	apiKey     string
	testMode   bool
	httpClient *http.Client
	logger     *zap.Logger
}

// NewShippoProvider creates a Shippo adapter. A missing API key is a
// configuration error surfaced here, not on first call.
func NewShippoProvider(apiKey string, testMode bool, logger *zap.Logger) (*ShippoProvider, error) {
	if apiKey == "" {
		return nil, &ConfigError{Provider: ProviderShippo, Variable: "SHIPPO_API_KEY"}
	}
	p := &ShippoProvider{
		BaseURL:    shippoBaseURL,
		apiKey:     apiKey,
		testMode:   testMode,
		httpClient: &http.Client{Timeout: providerTimeout},
		logger:     logger,
	}
	mode := "LIVE"
	if testMode {
		mode = "TEST"
	}
	logger.Info("Initialized Shippo client", zap.String("mode", mode))
	return p, nil
}

func (s *ShippoProvider) Name() string { return ProviderShippo }

// ---- Shippo API request/response structs ----

type shippoAddress struct {
	Name          string `json:"name"`
	Street1       string `json:"street1"`
	Street2       string `json:"street2,omitempty"`
	City          string `json:"city"`
	State         string `json:"state"`
	Zip           string `json:"zip"`
	Country       string `json:"country"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	IsResidential bool   `json:"is_residential"`
	Validate      bool   `json:"validate,omitempty"`
}

type shippoParcel struct {
	Length       string `json:"length"`
	Width        string `json:"width"`
	Height       string `json:"height"`
	DistanceUnit string `json:"distance_unit"`
	Weight       string `json:"weight"`
	MassUnit     string `json:"mass_unit"`
}

type shippoShipmentRequest struct {
	AddressFrom shippoAddress  `json:"address_from"`
	AddressTo   shippoAddress  `json:"address_to"`
	Parcels     []shippoParcel `json:"parcels"`
	Async       bool           `json:"async"`
}

type shippoRate struct {
	ObjectID     string `json:"object_id"`
	Provider     string `json:"provider"`
	ServiceLevel struct {
		Name  string `json:"name"`
		Token string `json:"token"`
	} `json:"servicelevel"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	EstimatedDays *int   `json:"estimated_days"`
	DurationTerms string `json:"duration_terms"`
}

type shippoShipmentResponse struct {
	Rates []shippoRate `json:"rates"`
}

type shippoTransactionRequest struct {
	Rate          string `json:"rate"`
	LabelFileType string `json:"label_file_type"`
	Async         bool   `json:"async"`
}

type shippoTransactionResponse struct {
	ObjectID       string `json:"object_id"`
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
	LabelURL       string `json:"label_url"`
	Messages       []struct {
		Text string `json:"text"`
	} `json:"messages"`
	// Rate comes back as either a bare object id or an embedded rate object.
	Rate json.RawMessage `json:"rate"`
}

type shippoAddressResponse struct {
	Street1           string `json:"street1"`
	Street2           string `json:"street2"`
	City              string `json:"city"`
	State             string `json:"state"`
	Zip               string `json:"zip"`
	Country           string `json:"country"`
	ValidationResults struct {
		IsValid  bool `json:"is_valid"`
		Messages []struct {
			Text string `json:"text"`
		} `json:"messages"`
	} `json:"validation_results"`
}

type shippoTrackResponse struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
	TrackingStatus struct {
		Status        string `json:"status"`
		StatusDate    string `json:"status_date"`
		StatusDetails string `json:"status_details"`
		Location      struct {
			City  string `json:"city"`
			State string `json:"state"`
		} `json:"location"`
	} `json:"tracking_status"`
	ETA string `json:"eta"`
}

// ---- ShippingProvider implementation ----

// GetRates creates a synchronous Shippo shipment and maps every quoted rate.
func (s *ShippoProvider) GetRates(ctx context.Context, from, to models.Address, parcel models.Parcel) ([]models.Rate, error) {
	reqBody := shippoShipmentRequest{
		AddressFrom: toShippoAddress(from),
		AddressTo:   toShippoAddress(to),
		Parcels:     []shippoParcel{toShippoParcel(parcel)},
		Async:       false,
	}

	var resp shippoShipmentResponse
	if err := s.doRequest(ctx, http.MethodPost, "/shipments/", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("shippo GetRates: %w", err)
	}

	rates := make([]models.Rate, 0, len(resp.Rates))
	for _, r := range resp.Rates {
		amount, _ := strconv.ParseFloat(r.Amount, 64)
		rates = append(rates, models.Rate{
			ObjectID:      r.ObjectID,
			Provider:      ProviderShippo,
			Carrier:       r.Provider,
			ServiceName:   r.ServiceLevel.Name,
			ServiceToken:  r.ServiceLevel.Token,
			Amount:        amount,
			Currency:      r.Currency,
			EstimatedDays: r.EstimatedDays,
			DurationTerms: r.DurationTerms,
		})
	}

	s.logger.Info("Retrieved rates from Shippo", zap.Int("count", len(rates)))
	return rates, nil
}

// PurchaseLabel buys the rate via a synchronous transaction. A transaction
// whose status is not SUCCESS fails with the provider's first message.
func (s *ShippoProvider) PurchaseLabel(ctx context.Context, rateID, format string) (models.ShippingLabel, error) {
	txReq := shippoTransactionRequest{
		Rate:          rateID,
		LabelFileType: format,
		Async:         false,
	}

	var resp shippoTransactionResponse
	if err := s.doRequest(ctx, http.MethodPost, "/transactions/", txReq, &resp); err != nil {
		return models.ShippingLabel{}, fmt.Errorf("shippo PurchaseLabel: %w", err)
	}

	if resp.Status != "SUCCESS" {
		msg := "Unknown error"
		if len(resp.Messages) > 0 {
			msg = resp.Messages[0].Text
		}
		return models.ShippingLabel{}, &PurchaseError{Provider: ProviderShippo, Message: msg}
	}

	// The transaction embeds full rate context only sometimes; when it is a
	// bare id we fall back to defaults.
	carrier, service := "Unknown", "Unknown"
	cost := 0.0
	var embedded struct {
		Provider         string `json:"provider"`
		ServicelevelName string `json:"servicelevel_name"`
		Amount           string `json:"amount"`
	}
	if len(resp.Rate) > 0 && resp.Rate[0] == '{' {
		if err := json.Unmarshal(resp.Rate, &embedded); err == nil {
			carrier = embedded.Provider
			service = embedded.ServicelevelName
			cost, _ = strconv.ParseFloat(embedded.Amount, 64)
		}
	}

	label := models.ShippingLabel{
		TrackingNumber: resp.TrackingNumber,
		LabelURL:       resp.LabelURL,
		Carrier:        carrier,
		Service:        service,
		Cost:           cost,
		Currency:       "USD",
		CreatedAt:      time.Now(),
	}

	s.logger.Info("Shippo label created", zap.String("tracking_number", label.TrackingNumber))
	return label, nil
}

// ValidateAddress submits the address with validation enabled. The
// normalized address from the response is attached whether or not the
// verdict was valid, so callers can inspect suggested corrections.
func (s *ShippoProvider) ValidateAddress(ctx context.Context, address models.Address) (models.ValidationResult, error) {
	reqBody := toShippoAddress(address)
	reqBody.Validate = true

	var resp shippoAddressResponse
	if err := s.doRequest(ctx, http.MethodPost, "/addresses/", reqBody, &resp); err != nil {
		return models.ValidationResult{}, fmt.Errorf("shippo ValidateAddress: %w", err)
	}

	messages := make([]string, 0, len(resp.ValidationResults.Messages))
	for _, m := range resp.ValidationResults.Messages {
		messages = append(messages, m.Text)
	}

	result := models.ValidationResult{
		IsValid:         resp.ValidationResults.IsValid,
		Messages:        messages,
		OriginalAddress: address,
	}

	if resp.Street1 != "" {
		result.ValidatedAddress = &models.Address{
			Name:          address.Name,
			Street1:       resp.Street1,
			Street2:       resp.Street2,
			City:          resp.City,
			State:         resp.State,
			Zip:           resp.Zip,
			Country:       resp.Country,
			Phone:         address.Phone,
			Email:         address.Email,
			IsResidential: address.IsResidential,
		}
	}

	if !result.IsValid {
		s.logger.Warn("Shippo address validation failed", zap.Strings("messages", messages))
	}
	return result, nil
}

// TrackShipment returns the current Shippo tracking status.
func (s *ShippoProvider) TrackShipment(ctx context.Context, carrier, trackingNumber string) (models.TrackingStatus, error) {
	path := fmt.Sprintf("/tracks/%s/%s", carrier, trackingNumber)

	var resp shippoTrackResponse
	if err := s.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return models.TrackingStatus{}, fmt.Errorf("shippo TrackShipment: %w", err)
	}

	statusDate := time.Now()
	if resp.TrackingStatus.StatusDate != "" {
		if t, err := time.Parse(time.RFC3339, resp.TrackingStatus.StatusDate); err == nil {
			statusDate = t
		}
	}

	location := ""
	if l := resp.TrackingStatus.Location; l.City != "" {
		location = fmt.Sprintf("%s, %s", l.City, l.State)
	}

	return models.TrackingStatus{
		Carrier:        resp.Carrier,
		TrackingNumber: resp.TrackingNumber,
		Status:         resp.TrackingStatus.Status,
		StatusDetails:  resp.TrackingStatus.StatusDetails,
		Location:       location,
		StatusDate:     statusDate,
		ETA:            resp.ETA,
	}, nil
}

// ---- helpers ----

func (s *ShippoProvider) doRequest(ctx context.Context, method, path string, body, out any) error {
	headers := map[string]string{"Authorization": "ShippoToken " + s.apiKey}
	return doJSON(ctx, s.httpClient, ProviderShippo, method, s.BaseURL+path, headers, body, out)
}

func toShippoAddress(a models.Address) shippoAddress {
	return shippoAddress{
		Name:          a.Name,
		Street1:       a.Street1,
		Street2:       a.Street2,
		City:          a.City,
		State:         a.State,
		Zip:           a.Zip,
		Country:       a.Country,
		Phone:         a.Phone,
		Email:         a.Email,
		IsResidential: a.Residential(),
	}
}

func toShippoParcel(p models.Parcel) shippoParcel {
	return shippoParcel{
		Length:       strconv.FormatFloat(p.Length, 'f', -1, 64),
		Width:        strconv.FormatFloat(p.Width, 'f', -1, 64),
		Height:       strconv.FormatFloat(p.Height, 'f', -1, 64),
		DistanceUnit: p.DistanceUnit,
		Weight:       strconv.FormatFloat(p.Weight, 'f', -1, 64),
		MassUnit:     p.MassUnit,
	}
}
