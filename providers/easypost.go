package providers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"shipping-gateway/models"

	"go.uber.org/zap"
)

const easypostBaseURL = "https://api.easypost.com/v2"

// EasyPostProvider implements ShippingProvider against the EasyPost API.
// EasyPost's purchase call needs the parent shipment id in addition to the
// rate id, so every Rate from GetRates carries ShipmentID.
type EasyPostProvider struct {
	BaseURL    string
	apiKey     string
	testMode   bool
	httpClient *http.Client
	logger     *zap.Logger
}

// NewEasyPostProvider creates an EasyPost adapter.
func NewEasyPostProvider(apiKey string, testMode bool, logger *zap.Logger) (*EasyPostProvider, error) {
	if apiKey == "" {
		return nil, &ConfigError{Provider: ProviderEasyPost, Variable: "EASYPOST_API_KEY"}
	}
	p := &EasyPostProvider{
		BaseURL:    easypostBaseURL,
		apiKey:     apiKey,
		testMode:   testMode,
		httpClient: &http.Client{Timeout: providerTimeout},
		logger:     logger,
	}
	mode := "LIVE"
	if testMode {
		mode = "TEST"
	}
	logger.Info("Initialized EasyPost client", zap.String("mode", mode))
	return p, nil
}

func (p *EasyPostProvider) Name() string { return ProviderEasyPost }

// ---- EasyPost API request/response structs ----

type easypostAddress struct {
	Name    string `json:"name"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

type easypostParcel struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Weight float64 `json:"weight"`
}

type easypostShipmentRequest struct {
	Shipment struct {
		FromAddress easypostAddress `json:"from_address"`
		ToAddress   easypostAddress `json:"to_address"`
		Parcel      easypostParcel  `json:"parcel"`
	} `json:"shipment"`
}

type easypostRate struct {
	ID           string `json:"id"`
	Carrier      string `json:"carrier"`
	Service      string `json:"service"`
	Rate         string `json:"rate"`
	Currency     string `json:"currency"`
	DeliveryDays *int   `json:"delivery_days"`
	ShipmentID   string `json:"shipment_id"`
}

type easypostShipmentResponse struct {
	ID    string         `json:"id"`
	Rates []easypostRate `json:"rates"`
}

type easypostBuyRequest struct {
	Rate struct {
		ID string `json:"id"`
	} `json:"rate"`
}

type easypostBoughtShipment struct {
	TrackingCode string `json:"tracking_code"`
	PostageLabel *struct {
		LabelURL string `json:"label_url"`
	} `json:"postage_label"`
	SelectedRate *easypostRate `json:"selected_rate"`
}

type easypostAddressRequest struct {
	Address easypostAddress `json:"address"`
	Verify  []string        `json:"verify"`
}

type easypostVerifiedAddress struct {
	Street1       string `json:"street1"`
	Street2       string `json:"street2"`
	City          string `json:"city"`
	State         string `json:"state"`
	Zip           string `json:"zip"`
	Country       string `json:"country"`
	Residential   *bool  `json:"residential"`
	Verifications struct {
		Delivery struct {
			Success bool `json:"success"`
			Errors  []struct {
				Message string `json:"message"`
			} `json:"errors"`
		} `json:"delivery"`
	} `json:"verifications"`
}

type easypostTrackerRequest struct {
	Tracker struct {
		TrackingCode string `json:"tracking_code"`
		Carrier      string `json:"carrier"`
	} `json:"tracker"`
}

type easypostTracker struct {
	TrackingCode    string `json:"tracking_code"`
	Status          string `json:"status"`
	Carrier         string `json:"carrier"`
	EstDeliveryDate string `json:"est_delivery_date"`
	TrackingDetails []struct {
		Datetime         string `json:"datetime"`
		Message          string `json:"message"`
		TrackingLocation struct {
			City  string `json:"city"`
			State string `json:"state"`
		} `json:"tracking_location"`
	} `json:"tracking_details"`
}

// ---- ShippingProvider implementation ----

// GetRates creates an EasyPost shipment; rates come back inline.
func (p *EasyPostProvider) GetRates(ctx context.Context, from, to models.Address, parcel models.Parcel) ([]models.Rate, error) {
	var reqBody easypostShipmentRequest
	reqBody.Shipment.FromAddress = toEasypostAddress(from)
	reqBody.Shipment.ToAddress = toEasypostAddress(to)
	reqBody.Shipment.Parcel = easypostParcel{
		Length: parcel.Length,
		Width:  parcel.Width,
		Height: parcel.Height,
		Weight: parcel.Weight,
	}

	var resp easypostShipmentResponse
	if err := p.doRequest(ctx, http.MethodPost, "/shipments", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("easypost GetRates: %w", err)
	}

	rates := make([]models.Rate, 0, len(resp.Rates))
	for _, r := range resp.Rates {
		amount, _ := strconv.ParseFloat(r.Rate, 64)
		rates = append(rates, models.Rate{
			ObjectID:      r.ID,
			Provider:      ProviderEasyPost,
			Carrier:       r.Carrier,
			ServiceName:   r.Service,
			ServiceToken:  r.Service,
			Amount:        amount,
			Currency:      r.Currency,
			EstimatedDays: r.DeliveryDays,
			ShipmentID:    resp.ID, // needed later to buy the label
		})
	}

	p.logger.Info("Retrieved rates from EasyPost", zap.Int("count", len(rates)))
	return rates, nil
}

// PurchaseLabel re-fetches the rate for its parent shipment id, then buys
// the shipment with the selected rate.
func (p *EasyPostProvider) PurchaseLabel(ctx context.Context, rateID, format string) (models.ShippingLabel, error) {
	var rate easypostRate
	if err := p.doRequest(ctx, http.MethodGet, "/rates/"+rateID, nil, &rate); err != nil {
		return models.ShippingLabel{}, fmt.Errorf("easypost PurchaseLabel: %w", err)
	}
	if rate.ShipmentID == "" {
		return models.ShippingLabel{}, &PurchaseError{Provider: ProviderEasyPost, Message: "rate has no parent shipment"}
	}

	var buyReq easypostBuyRequest
	buyReq.Rate.ID = rateID

	var bought easypostBoughtShipment
	path := fmt.Sprintf("/shipments/%s/buy", rate.ShipmentID)
	if err := p.doRequest(ctx, http.MethodPost, path, buyReq, &bought); err != nil {
		return models.ShippingLabel{}, fmt.Errorf("easypost PurchaseLabel: %w", err)
	}

	if bought.PostageLabel == nil {
		return models.ShippingLabel{}, &PurchaseError{Provider: ProviderEasyPost, Message: "No postage label returned"}
	}

	carrier, service := "Unknown", "Unknown"
	cost := 0.0
	if bought.SelectedRate != nil {
		carrier = bought.SelectedRate.Carrier
		service = bought.SelectedRate.Service
		cost, _ = strconv.ParseFloat(bought.SelectedRate.Rate, 64)
	}

	label := models.ShippingLabel{
		TrackingNumber: bought.TrackingCode,
		LabelURL:       bought.PostageLabel.LabelURL,
		Carrier:        carrier,
		Service:        service,
		Cost:           cost,
		Currency:       "USD",
		CreatedAt:      time.Now(),
	}

	p.logger.Info("EasyPost label created", zap.String("tracking_number", label.TrackingNumber))
	return label, nil
}

// ValidateAddress verifies deliverability. A failure of the validation call
// itself degrades to an invalid result carrying the error text; it is never
// returned as an error.
func (p *EasyPostProvider) ValidateAddress(ctx context.Context, address models.Address) (models.ValidationResult, error) {
	reqBody := easypostAddressRequest{
		Address: toEasypostAddress(address),
		Verify:  []string{"delivery"},
	}

	var resp easypostVerifiedAddress
	if err := p.doRequest(ctx, http.MethodPost, "/addresses", reqBody, &resp); err != nil {
		p.logger.Error("EasyPost address validation error", zap.Error(err))
		return models.ValidationResult{
			IsValid:         false,
			Messages:        []string{err.Error()},
			OriginalAddress: address,
		}, nil
	}

	delivery := resp.Verifications.Delivery
	messages := make([]string, 0, len(delivery.Errors))
	for _, e := range delivery.Errors {
		messages = append(messages, e.Message)
	}

	result := models.ValidationResult{
		IsValid:         delivery.Success,
		Messages:        messages,
		OriginalAddress: address,
	}

	if resp.Street1 != "" {
		residential := address.IsResidential
		if resp.Residential != nil {
			residential = resp.Residential
		}
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
			IsResidential: residential,
		}
	}

	return result, nil
}

// TrackShipment creates a tracker and reads its latest detail.
func (p *EasyPostProvider) TrackShipment(ctx context.Context, carrier, trackingNumber string) (models.TrackingStatus, error) {
	var reqBody easypostTrackerRequest
	reqBody.Tracker.TrackingCode = trackingNumber
	reqBody.Tracker.Carrier = carrier

	var tracker easypostTracker
	if err := p.doRequest(ctx, http.MethodPost, "/trackers", reqBody, &tracker); err != nil {
		return models.TrackingStatus{}, fmt.Errorf("easypost TrackShipment: %w", err)
	}

	status := models.TrackingStatus{
		Carrier:        tracker.Carrier,
		TrackingNumber: tracker.TrackingCode,
		Status:         tracker.Status,
		StatusDate:     time.Now(),
		ETA:            tracker.EstDeliveryDate,
	}
	if status.Status == "" {
		status.Status = "unknown"
	}

	if len(tracker.TrackingDetails) > 0 {
		latest := tracker.TrackingDetails[0]
		status.StatusDetails = latest.Message
		if latest.TrackingLocation.City != "" {
			status.Location = fmt.Sprintf("%s, %s", latest.TrackingLocation.City, latest.TrackingLocation.State)
		}
		if t, err := time.Parse(time.RFC3339, latest.Datetime); err == nil {
			status.StatusDate = t
		}
	}

	return status, nil
}

// ---- helpers ----

func (p *EasyPostProvider) doRequest(ctx context.Context, method, path string, body, out any) error {
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	return doJSON(ctx, p.httpClient, ProviderEasyPost, method, p.BaseURL+path, headers, body, out)
}

func toEasypostAddress(a models.Address) easypostAddress {
	return easypostAddress{
		Name:    a.Name,
		Street1: a.Street1,
		Street2: a.Street2,
		City:    a.City,
		State:   a.State,
		Zip:     a.Zip,
		Country: a.Country,
		Phone:   a.Phone,
		Email:   a.Email,
	}
}
