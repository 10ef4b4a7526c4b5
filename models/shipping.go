package models

import (
	"fmt"
	"regexp"
	"time"
)

// Address represents a physical mailing address used for shipping.
type Address struct {
	Name          string `json:"name" binding:"required"`
	Street1       string `json:"street1" binding:"required"`
	Street2       string `json:"street2,omitempty"`
	City          string `json:"city" binding:"required"`
	State         string `json:"state" binding:"required"`
	Zip           string `json:"zip" binding:"required"`
	Country       string `json:"country"` // ISO 3166-1 alpha-2, e.g. "US"
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	IsResidential *bool  `json:"is_residential,omitempty"`
}

// Residential reports whether the address is residential; unset means true.
func (a Address) Residential() bool {
	if a.IsResidential == nil {
		return true
	}
	return *a.IsResidential
}

// ApplyDefaults fills in defaulted fields on a caller-supplied address.
func (a *Address) ApplyDefaults() {
	if a.Country == "" {
		a.Country = "US"
	}
}

var zipPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// ValidZIP reports whether s is a 5-digit or ZIP+4 US postal code.
// Callers check this explicitly; the Address model never enforces it.
func ValidZIP(s string) bool {
	return zipPattern.MatchString(s)
}

// Parcel describes package dimensions and weight.
type Parcel struct {
	Length       float64 `json:"length" binding:"required,gt=0"`
	Width        float64 `json:"width" binding:"required,gt=0"`
	Height       float64 `json:"height" binding:"required,gt=0"`
	DistanceUnit string  `json:"distance_unit"` // "in" or "cm"
	Weight       float64 `json:"weight" binding:"required,gt=0"`
	MassUnit     string  `json:"mass_unit"` // "lb" or "kg"
}

// ApplyDefaults fills in the default units (inches, pounds).
func (p *Parcel) ApplyDefaults() {
	if p.DistanceUnit == "" {
		p.DistanceUnit = "in"
	}
	if p.MassUnit == "" {
		p.MassUnit = "lb"
	}
}

// DimensionalWeight returns the dimensional weight in pounds using the
// standard domestic US divisor of 166 cubic inches per pound.
func (p Parcel) DimensionalWeight() float64 {
	l, w, h := p.Length, p.Width, p.Height
	if p.DistanceUnit == "cm" {
		l /= 2.54
		w /= 2.54
		h /= 2.54
	}
	dim := (l * w * h) / 166
	return float64(int(dim*100+0.5)) / 100
}

// Rate is a single quoted shipping option from one provider. ObjectID (plus
// ShipmentID where the provider needs a parent shipment reference) is all a
// purchase call needs; rates are never portable across providers.
type Rate struct {
	ObjectID      string  `json:"object_id"`
	Provider      string  `json:"provider"` // issuing aggregator, e.g. "shippo"
	Carrier       string  `json:"carrier"`  // carrier display name, e.g. "USPS"
	ServiceName   string  `json:"servicelevel_name"`
	ServiceToken  string  `json:"servicelevel_token"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	EstimatedDays *int    `json:"estimated_days,omitempty"`
	DurationTerms string  `json:"duration_terms,omitempty"`
	ShipmentID    string  `json:"shipment_id,omitempty"`
}

func (r Rate) String() string {
	days := "N/A"
	if r.EstimatedDays != nil {
		days = fmt.Sprintf("%d days", *r.EstimatedDays)
	} else if r.DurationTerms != "" {
		days = r.DurationTerms
	}
	return fmt.Sprintf("%s %s: $%.2f (%s)", r.Carrier, r.ServiceName, r.Amount, days)
}

// ShippingLabel is the terminal artifact of a successful purchase. LabelURL
// is provider-hosted and time-limited; callers must download it promptly.
type ShippingLabel struct {
	TrackingNumber string    `json:"tracking_number"`
	LabelURL       string    `json:"label_url"`
	Carrier        string    `json:"carrier"`
	Service        string    `json:"service"`
	Cost           float64   `json:"cost"`
	Currency       string    `json:"currency"`
	CreatedAt      time.Time `json:"created_at"`
}

// ValidationResult is the outcome of a carrier-aggregator address check.
// ValidatedAddress carries the provider's best-guess normalized address
// whenever one was returned, even on an invalid verdict.
type ValidationResult struct {
	IsValid          bool     `json:"is_valid"`
	Messages         []string `json:"messages"`
	OriginalAddress  Address  `json:"original_address"`
	ValidatedAddress *Address `json:"validated_address,omitempty"`
}

// TrackingStatus is the current state of a shipment in transit.
type TrackingStatus struct {
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"tracking_number"`
	Status         string    `json:"status"`
	StatusDetails  string    `json:"status_details,omitempty"`
	Location       string    `json:"location,omitempty"`
	StatusDate     time.Time `json:"status_date"`
	ETA            string    `json:"eta,omitempty"`
}

// RatesRequest is the payload for the rate fan-out endpoint. FromAddress may
// be omitted when the server is configured with a default origin address.
type RatesRequest struct {
	FromAddress Address `json:"from_address"`
	ToAddress   Address `json:"to_address" binding:"required"`
	Parcel      Parcel  `json:"parcel" binding:"required"`
}

// PurchaseRequest is the payload for buying a label from a quoted rate.
type PurchaseRequest struct {
	RateID      string  `json:"rate_id" binding:"required"`
	Provider    string  `json:"provider" binding:"required"`
	Format      string  `json:"format"`
	FromAddress Address `json:"from_address"`
	ToAddress   Address `json:"to_address"`
}

// ValidateRequest is the payload for address validation. Provider defaults
// to "auto", which picks the first configured validation provider.
type ValidateRequest struct {
	Address  Address `json:"address" binding:"required"`
	Provider string  `json:"provider"`
}
