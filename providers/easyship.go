package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shipping-gateway/models"

	"go.uber.org/zap"
)

const easyshipBaseURL = "https://public-api.easyship.com/2024-09"

// easyshipNameLimit is Easyship's hard cap on contact_name; longer names
// are silently truncated before transmission.
const easyshipNameLimit = 22

// EasyshipProvider implements ShippingProvider against the Easyship API.
type EasyshipProvider struct {
	BaseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewEasyshipProvider creates an Easyship adapter.
func NewEasyshipProvider(apiKey string, logger *zap.Logger) (*EasyshipProvider, error) {
	if apiKey == "" {
		return nil, &ConfigError{Provider: ProviderEasyship, Variable: "EASYSHIP_API_KEY"}
	}
	logger.Info("Initialized Easyship client")
	return &EasyshipProvider{
		BaseURL:    easyshipBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: providerTimeout},
		logger:     logger,
	}, nil
}

func (p *EasyshipProvider) Name() string { return ProviderEasyship }

// ---- Easyship API request/response structs ----

type easyshipAddress struct {
	Line1         string `json:"line_1"`
	Line2         string `json:"line_2,omitempty"`
	City          string `json:"city"`
	State         string `json:"state"`
	PostalCode    string `json:"postal_code"`
	CountryAlpha2 string `json:"country_alpha2"`
	ContactName   string `json:"contact_name"`
	ContactPhone  string `json:"contact_phone,omitempty"`
	ContactEmail  string `json:"contact_email,omitempty"`
}

type easyshipItem struct {
	ActualWeight         float64 `json:"actual_weight"`
	Category             string  `json:"category"`
	DeclaredCurrency     string  `json:"declared_currency"`
	DeclaredCustomsValue float64 `json:"declared_customs_value"`
	Description          string  `json:"description"`
	Quantity             int     `json:"quantity"`
	HSCode               string  `json:"hs_code"`
}

type easyshipParcel struct {
	Box struct {
		Length float64 `json:"length"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"box"`
	Items []easyshipItem `json:"items"`
}

type easyshipRateRequest struct {
	OriginAddress      easyshipAddress  `json:"origin_address"`
	DestinationAddress easyshipAddress  `json:"destination_address"`
	Parcels            []easyshipParcel `json:"parcels"`
	Incoterms          string           `json:"incoterms"`
	Insurance          struct {
		IsInsured bool `json:"is_insured"`
	} `json:"insurance"`
}

type easyshipRate struct {
	CourierID          string  `json:"courier_id"`
	CourierName        string  `json:"courier_name"`
	CourierDisplayName string  `json:"courier_display_name"`
	FullDescription    string  `json:"full_description"`
	TotalCharge        float64 `json:"total_charge"`
	MinDeliveryTime    *int    `json:"min_delivery_time"`
	MaxDeliveryTime    *int    `json:"max_delivery_time"`
}

type easyshipRatesResponse struct {
	Rates []easyshipRate `json:"rates"`
}

type easyshipShipmentRequest struct {
	OriginAddress      easyshipAddress  `json:"origin_address"`
	DestinationAddress easyshipAddress  `json:"destination_address"`
	Parcels            []easyshipParcel `json:"parcels"`
	CourierSelection   struct {
		SelectedCourierID string `json:"selected_courier_id"`
	} `json:"courier_selection"`
	Incoterms string `json:"incoterms"`
}

type easyshipShipment struct {
	EasyshipShipmentID string `json:"easyship_shipment_id"`
	Courier            struct {
		Name string `json:"name"`
	} `json:"courier"`
	TrackingNumber string `json:"tracking_number"`
	Label          struct {
		State string `json:"state"`
		URL   string `json:"url"`
	} `json:"label"`
	ShipmentCost float64 `json:"total_charge"`
}

type easyshipShipmentResponse struct {
	Shipment easyshipShipment `json:"shipment"`
}

type easyshipLabelRequest struct {
	Shipments []struct {
		EasyshipShipmentID string `json:"easyship_shipment_id"`
	} `json:"shipments"`
}

type easyshipLabelResponse struct {
	Labels []struct {
		ShipmentID     string  `json:"easyship_shipment_id"`
		State          string  `json:"state"`
		TrackingNumber string  `json:"tracking_number"`
		LabelURL       string  `json:"label_url"`
		CourierName    string  `json:"courier_name"`
		ServiceName    string  `json:"service_name"`
		ShipmentCharge float64 `json:"shipment_charge_total"`
	} `json:"labels"`
}

type easyshipAddressResponse struct {
	Address struct {
		Line1         string `json:"line_1"`
		Line2         string `json:"line_2"`
		City          string `json:"city"`
		State         string `json:"state"`
		PostalCode    string `json:"postal_code"`
		CountryAlpha2 string `json:"country_alpha2"`
	} `json:"address"`
}

// ---- ShippingProvider implementation ----

// GetRates quotes the parcel across Easyship's couriers. Records missing an
// explicit courier name get one derived from the service description.
func (p *EasyshipProvider) GetRates(ctx context.Context, from, to models.Address, parcel models.Parcel) ([]models.Rate, error) {
	reqBody := easyshipRateRequest{
		OriginAddress:      toEasyshipAddress(from),
		DestinationAddress: toEasyshipAddress(to),
		Parcels:            []easyshipParcel{toEasyshipParcel(parcel)},
		Incoterms:          "DDU",
	}

	var resp easyshipRatesResponse
	if err := p.doRequest(ctx, http.MethodPost, "/rates", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("easyship GetRates: %w", err)
	}

	rates := make([]models.Rate, 0, len(resp.Rates))
	for _, r := range resp.Rates {
		serviceName := r.FullDescription
		if serviceName == "" {
			serviceName = r.CourierDisplayName
		}

		courier := r.CourierName
		if courier == "" {
			courier = deriveCourierName(serviceName)
		}

		durationTerms := ""
		if r.MinDeliveryTime != nil {
			maxDays := "?"
			if r.MaxDeliveryTime != nil {
				maxDays = fmt.Sprintf("%d", *r.MaxDeliveryTime)
			}
			durationTerms = fmt.Sprintf("%d-%s days", *r.MinDeliveryTime, maxDays)
		}

		rates = append(rates, models.Rate{
			ObjectID:      r.CourierID,
			Provider:      ProviderEasyship,
			Carrier:       courier,
			ServiceName:   serviceName,
			ServiceToken:  r.CourierID,
			Amount:        r.TotalCharge,
			Currency:      "USD",
			EstimatedDays: r.MinDeliveryTime,
			DurationTerms: durationTerms,
		})
	}

	p.logger.Info("Retrieved rates from Easyship", zap.Int("count", len(rates)))
	return rates, nil
}

// PurchaseLabel creates a shipment pinned to the quoted courier, then
// requests its label.
func (p *EasyshipProvider) PurchaseLabel(ctx context.Context, rateID, format string) (models.ShippingLabel, error) {
	var shipReq easyshipShipmentRequest
	shipReq.CourierSelection.SelectedCourierID = rateID
	shipReq.Incoterms = "DDU"

	var shipResp easyshipShipmentResponse
	if err := p.doRequest(ctx, http.MethodPost, "/shipments", shipReq, &shipResp); err != nil {
		return models.ShippingLabel{}, fmt.Errorf("easyship PurchaseLabel: %w", err)
	}
	if shipResp.Shipment.EasyshipShipmentID == "" {
		return models.ShippingLabel{}, &PurchaseError{Provider: ProviderEasyship, Message: "no shipment created"}
	}

	var labelReq easyshipLabelRequest
	labelReq.Shipments = []struct {
		EasyshipShipmentID string `json:"easyship_shipment_id"`
	}{{EasyshipShipmentID: shipResp.Shipment.EasyshipShipmentID}}

	var labelResp easyshipLabelResponse
	if err := p.doRequest(ctx, http.MethodPost, "/labels", labelReq, &labelResp); err != nil {
		return models.ShippingLabel{}, fmt.Errorf("easyship PurchaseLabel: %w", err)
	}
	if len(labelResp.Labels) == 0 || labelResp.Labels[0].LabelURL == "" {
		return models.ShippingLabel{}, &PurchaseError{Provider: ProviderEasyship, Message: "no label artifact returned"}
	}

	lbl := labelResp.Labels[0]
	carrier := lbl.CourierName
	if carrier == "" {
		carrier = shipResp.Shipment.Courier.Name
	}
	if carrier == "" {
		carrier = "Unknown"
	}
	service := lbl.ServiceName
	if service == "" {
		service = "Unknown"
	}
	tracking := lbl.TrackingNumber
	if tracking == "" {
		tracking = shipResp.Shipment.TrackingNumber
	}

	label := models.ShippingLabel{
		TrackingNumber: tracking,
		LabelURL:       lbl.LabelURL,
		Carrier:        carrier,
		Service:        service,
		Cost:           lbl.ShipmentCharge,
		Currency:       "USD",
		CreatedAt:      time.Now(),
	}

	p.logger.Info("Easyship label created", zap.String("tracking_number", label.TrackingNumber))
	return label, nil
}

// ValidateAddress submits the address for creation; Easyship has no
// dedicated verification endpoint, so acceptance with a normalized echo is
// treated as validity.
func (p *EasyshipProvider) ValidateAddress(ctx context.Context, address models.Address) (models.ValidationResult, error) {
	reqBody := toEasyshipAddress(address)

	var resp easyshipAddressResponse
	if err := p.doRequest(ctx, http.MethodPost, "/addresses", reqBody, &resp); err != nil {
		p.logger.Error("Easyship address validation error", zap.Error(err))
		return models.ValidationResult{
			IsValid:         false,
			Messages:        []string{err.Error()},
			OriginalAddress: address,
		}, nil
	}

	result := models.ValidationResult{
		IsValid:         true,
		Messages:        []string{},
		OriginalAddress: address,
	}
	if resp.Address.Line1 != "" {
		result.ValidatedAddress = &models.Address{
			Name:          address.Name,
			Street1:       resp.Address.Line1,
			Street2:       resp.Address.Line2,
			City:          resp.Address.City,
			State:         resp.Address.State,
			Zip:           resp.Address.PostalCode,
			Country:       resp.Address.CountryAlpha2,
			Phone:         address.Phone,
			Email:         address.Email,
			IsResidential: address.IsResidential,
		}
	}
	return result, nil
}

// ---- helpers ----

// deriveCourierName recovers a carrier display name from a service
// description like "USPS - Priority Mail" when the record omits one.
func deriveCourierName(serviceName string) string {
	if serviceName == "" {
		return "Unknown"
	}
	if idx := strings.Index(serviceName, " - "); idx >= 0 {
		return strings.TrimSpace(serviceName[:idx])
	}
	if strings.HasPrefix(serviceName, "FedEx") {
		return "FedEx"
	}
	return "Unknown"
}

func (p *EasyshipProvider) doRequest(ctx context.Context, method, path string, body, out any) error {
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	return doJSON(ctx, p.httpClient, ProviderEasyship, method, p.BaseURL+path, headers, body, out)
}

func toEasyshipAddress(a models.Address) easyshipAddress {
	contactName := a.Name
	if len(contactName) > easyshipNameLimit {
		contactName = contactName[:easyshipNameLimit]
	}
	return easyshipAddress{
		Line1:         a.Street1,
		Line2:         a.Street2,
		City:          a.City,
		State:         a.State,
		PostalCode:    a.Zip,
		CountryAlpha2: a.Country,
		ContactName:   contactName,
		ContactPhone:  a.Phone,
		ContactEmail:  a.Email,
	}
}

func toEasyshipParcel(p models.Parcel) easyshipParcel {
	var parcel easyshipParcel
	parcel.Box.Length = p.Length
	parcel.Box.Width = p.Width
	parcel.Box.Height = p.Height
	parcel.Items = []easyshipItem{
		{
			ActualWeight:         p.Weight,
			Category:             "general",
			DeclaredCurrency:     "USD",
			DeclaredCustomsValue: 50.0,
			Description:          "Package",
			Quantity:             1,
			HSCode:               "9999.99.99", // generic HS code for unspecified goods
		},
	}
	return parcel
}
