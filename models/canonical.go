package models

// Canonical is the single capability the HTTP boundary uses to flatten an
// entity into its fixed canonical field set. Optionals the entity does not
// carry are emitted as nil so the serialized shape is deterministic.
type Canonical interface {
	CanonicalFields() map[string]any
}

func (a Address) CanonicalFields() map[string]any {
	return map[string]any{
		"name":           a.Name,
		"street1":        a.Street1,
		"street2":        nilIfEmpty(a.Street2),
		"city":           a.City,
		"state":          a.State,
		"zip":            a.Zip,
		"country":        a.Country,
		"phone":          nilIfEmpty(a.Phone),
		"email":          nilIfEmpty(a.Email),
		"is_residential": a.Residential(),
	}
}

func (r Rate) CanonicalFields() map[string]any {
	var days any
	if r.EstimatedDays != nil {
		days = *r.EstimatedDays
	}
	return map[string]any{
		"object_id":          r.ObjectID,
		"provider":           r.Provider,
		"carrier":            r.Carrier,
		"servicelevel_name":  r.ServiceName,
		"servicelevel_token": nilIfEmpty(r.ServiceToken),
		"amount":             r.Amount,
		"currency":           r.Currency,
		"estimated_days":     days,
		"duration_terms":     nilIfEmpty(r.DurationTerms),
		"shipment_id":        nilIfEmpty(r.ShipmentID),
	}
}

func (l ShippingLabel) CanonicalFields() map[string]any {
	return map[string]any{
		"tracking_number": l.TrackingNumber,
		"label_url":       l.LabelURL,
		"carrier":         l.Carrier,
		"service":         l.Service,
		"cost":            l.Cost,
		"currency":        l.Currency,
		"created_at":      l.CreatedAt,
	}
}

func (v ValidationResult) CanonicalFields() map[string]any {
	var suggested any
	if v.ValidatedAddress != nil {
		suggested = v.ValidatedAddress.CanonicalFields()
	}
	messages := v.Messages
	if messages == nil {
		messages = []string{}
	}
	return map[string]any{
		"is_valid":  v.IsValid,
		"messages":  messages,
		"original":  v.OriginalAddress.CanonicalFields(),
		"suggested": suggested,
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
