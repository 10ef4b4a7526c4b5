package models_test

import (
	"testing"

	"shipping-gateway/models"

	"github.com/stretchr/testify/assert"
)

func TestValidZIP(t *testing.T) {
	assert.True(t, models.ValidZIP("94105"))
	assert.True(t, models.ValidZIP("94105-1234"))

	assert.False(t, models.ValidZIP("9410"))
	assert.False(t, models.ValidZIP("941051"))
	assert.False(t, models.ValidZIP("94105-12"))
	assert.False(t, models.ValidZIP("ABCDE"))
	assert.False(t, models.ValidZIP(""))
}

func TestAddressDefaults(t *testing.T) {
	a := models.Address{Name: "J", Street1: "1 A St", City: "SF", State: "CA", Zip: "94105"}
	a.ApplyDefaults()
	assert.Equal(t, "US", a.Country)

	// residential defaults to true when unset
	assert.True(t, a.Residential())

	f := false
	a.IsResidential = &f
	assert.False(t, a.Residential())
}

func TestParcelDefaults(t *testing.T) {
	p := models.Parcel{Length: 10, Width: 8, Height: 4, Weight: 2}
	p.ApplyDefaults()
	assert.Equal(t, "in", p.DistanceUnit)
	assert.Equal(t, "lb", p.MassUnit)
}

func TestDimensionalWeight(t *testing.T) {
	p := models.Parcel{Length: 12, Width: 12, Height: 12, DistanceUnit: "in"}
	// 1728 / 166 = 10.409... rounded to 2 decimals
	assert.InDelta(t, 10.41, p.DimensionalWeight(), 0.001)

	metric := models.Parcel{Length: 30.48, Width: 30.48, Height: 30.48, DistanceUnit: "cm"}
	assert.InDelta(t, 10.41, metric.DimensionalWeight(), 0.001)
}

func TestRateString(t *testing.T) {
	days := 2
	r := models.Rate{Carrier: "USPS", ServiceName: "Priority Mail", Amount: 8.5, EstimatedDays: &days}
	assert.Equal(t, "USPS Priority Mail: $8.50 (2 days)", r.String())

	terms := models.Rate{Carrier: "FedEx", ServiceName: "Ground", Amount: 12.4, DurationTerms: "2-5 days"}
	assert.Equal(t, "FedEx Ground: $12.40 (2-5 days)", terms.String())

	bare := models.Rate{Carrier: "UPS", ServiceName: "Next Day", Amount: 30}
	assert.Equal(t, "UPS Next Day: $30.00 (N/A)", bare.String())
}

func TestRateCanonicalFields(t *testing.T) {
	r := models.Rate{
		ObjectID:    "r1",
		Provider:    "shippo",
		Carrier:     "USPS",
		ServiceName: "Priority Mail",
		Amount:      8.5,
		Currency:    "USD",
	}
	fields := r.CanonicalFields()

	// absent optionals are present with nil values, never omitted
	assert.Contains(t, fields, "estimated_days")
	assert.Nil(t, fields["estimated_days"])
	assert.Contains(t, fields, "duration_terms")
	assert.Nil(t, fields["duration_terms"])
	assert.Contains(t, fields, "shipment_id")
	assert.Nil(t, fields["shipment_id"])

	assert.Equal(t, "USPS", fields["carrier"])
	assert.Equal(t, 8.5, fields["amount"])

	days := 3
	r.EstimatedDays = &days
	r.ShipmentID = "shp_1"
	fields = r.CanonicalFields()
	assert.Equal(t, 3, fields["estimated_days"])
	assert.Equal(t, "shp_1", fields["shipment_id"])
}

func TestAddressCanonicalFields(t *testing.T) {
	a := models.Address{Name: "J", Street1: "1 A St", City: "SF", State: "CA", Zip: "94105", Country: "US"}
	fields := a.CanonicalFields()

	assert.Nil(t, fields["street2"])
	assert.Nil(t, fields["phone"])
	assert.Nil(t, fields["email"])
	assert.Equal(t, true, fields["is_residential"])
}

func TestValidationResultCanonicalFields(t *testing.T) {
	orig := models.Address{Name: "J", Street1: "215 clayton", City: "sf", State: "CA", Zip: "94117", Country: "US"}

	v := models.ValidationResult{IsValid: false, OriginalAddress: orig}
	fields := v.CanonicalFields()
	assert.Equal(t, false, fields["is_valid"])
	assert.NotNil(t, fields["messages"], "nil messages serialize as an empty list")
	assert.Nil(t, fields["suggested"])

	suggested := models.Address{Name: "J", Street1: "215 CLAYTON ST", City: "SAN FRANCISCO", State: "CA", Zip: "94117", Country: "US"}
	v.ValidatedAddress = &suggested
	fields = v.CanonicalFields()
	assert.NotNil(t, fields["suggested"])
}
