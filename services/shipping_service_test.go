package services_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shipping-gateway/models"
	"shipping-gateway/pkg/aws"
	"shipping-gateway/providers"
	"shipping-gateway/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// ---- mock repository ----

type mockLabelRepo struct {
	createErr   error
	created     []*models.LabelRecord
	byTracking  *models.LabelRecord
	trackingErr error
	rangeRecs   []models.LabelRecord
	rangeErr    error
	allRecs     []models.LabelRecord
	allTotal    int64
	allErr      error
}

func (m *mockLabelRepo) Create(_ context.Context, r *models.LabelRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.created = append(m.created, r)
	return nil
}

func (m *mockLabelRepo) FindByID(_ context.Context, _ uuid.UUID) (*models.LabelRecord, error) {
	return nil, errors.New("not found")
}

func (m *mockLabelRepo) FindByTrackingNumber(_ context.Context, _ string) (*models.LabelRecord, error) {
	return m.byTracking, m.trackingErr
}

func (m *mockLabelRepo) FindByDateRange(_ context.Context, _, _ time.Time) ([]models.LabelRecord, error) {
	return m.rangeRecs, m.rangeErr
}

func (m *mockLabelRepo) FindAll(_ context.Context, _, _ int) ([]models.LabelRecord, int64, error) {
	return m.allRecs, m.allTotal, m.allErr
}

// ---- mock provider ----

type mockProvider struct {
	name       string
	rates      []models.Rate
	ratesErr   error
	label      models.ShippingLabel
	labelErr   error
	validation models.ValidationResult
	valErr     error
	tracking   models.TrackingStatus
	trackErr   error
	lastFrom   models.Address
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) GetRates(_ context.Context, from, _ models.Address, _ models.Parcel) ([]models.Rate, error) {
	m.lastFrom = from
	return m.rates, m.ratesErr
}

func (m *mockProvider) PurchaseLabel(_ context.Context, _, _ string) (models.ShippingLabel, error) {
	return m.label, m.labelErr
}

func (m *mockProvider) ValidateAddress(_ context.Context, _ models.Address) (models.ValidationResult, error) {
	return m.validation, m.valErr
}

func (m *mockProvider) TrackShipment(_ context.Context, _, _ string) (models.TrackingStatus, error) {
	return m.tracking, m.trackErr
}

// noTrackProvider implements ShippingProvider but not ShipmentTracker.
type noTrackProvider struct{ name string }

func (p *noTrackProvider) Name() string { return p.name }
func (p *noTrackProvider) GetRates(_ context.Context, _, _ models.Address, _ models.Parcel) ([]models.Rate, error) {
	return nil, nil
}
func (p *noTrackProvider) PurchaseLabel(_ context.Context, _, _ string) (models.ShippingLabel, error) {
	return models.ShippingLabel{}, nil
}
func (p *noTrackProvider) ValidateAddress(_ context.Context, _ models.Address) (models.ValidationResult, error) {
	return models.ValidationResult{}, nil
}

// ---- mock uploader / SNS ----

type mockUploader struct {
	uploadErr error
	keys      []string
	link      string
}

func (m *mockUploader) UploadLabel(_ context.Context, key string, _ []byte) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	m.keys = append(m.keys, key)
	return m.link, nil
}

type mockSNS struct {
	published [][]byte
	err       error
}

func (m *mockSNS) Publish(_ context.Context, _ string, msg []byte) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, msg)
	return nil
}

// ---- helpers ----

func validRatesRequest() *models.RatesRequest {
	return &models.RatesRequest{
		FromAddress: models.Address{Name: "From", Street1: "1 A St", City: "SF", State: "CA", Zip: "94105"},
		ToAddress:   models.Address{Name: "To", Street1: "2 B St", City: "NY", State: "NY", Zip: "10001"},
		Parcel:      models.Parcel{Length: 10, Width: 8, Height: 4, Weight: 2},
	}
}

func newService(repo *mockLabelRepo, provs map[string]providers.ShippingProvider, up *mockUploader, sns *mockSNS) services.ShippingService {
	var uploader aws.LabelUploader
	if up != nil {
		uploader = up
	}
	var publisher aws.SNSPublisher
	if sns != nil {
		publisher = sns
	}
	return services.NewShippingService(repo, provs, uploader, publisher,
		"arn:aws:sns:us-east-1:000000000000:labels", "PDF", nil, zap.NewNop())
}

// ---- GetRates ----

func TestGetRates_PartialSuccess(t *testing.T) {
	provs := map[string]providers.ShippingProvider{
		"shippo":   &mockProvider{name: "shippo", rates: []models.Rate{{ObjectID: "r1", Provider: "shippo"}}},
		"easypost": &mockProvider{name: "easypost", ratesErr: errors.New("offline")},
	}
	svc := newService(&mockLabelRepo{}, provs, nil, nil)

	set, svcErr := svc.GetRates(context.Background(), validRatesRequest())
	assert.Nil(t, svcErr)
	assert.Len(t, set.Results["shippo"], 1)
	assert.Equal(t, "offline", set.Errors["easypost"])
}

func TestGetRates_AllProvidersFailed(t *testing.T) {
	provs := map[string]providers.ShippingProvider{
		"shippo": &mockProvider{name: "shippo", ratesErr: errors.New("down")},
	}
	svc := newService(&mockLabelRepo{}, provs, nil, nil)

	set, svcErr := svc.GetRates(context.Background(), validRatesRequest())
	assert.NotNil(t, svcErr)
	assert.Equal(t, 502, svcErr.StatusCode)
	assert.Equal(t, "down", set.Errors["shippo"])
}

func TestGetRates_ZeroProvidersIsNotAnError(t *testing.T) {
	svc := newService(&mockLabelRepo{}, map[string]providers.ShippingProvider{}, nil, nil)

	set, svcErr := svc.GetRates(context.Background(), validRatesRequest())
	assert.Nil(t, svcErr)
	assert.Empty(t, set.Results)
	assert.Empty(t, set.Errors)
}

func TestGetRates_InvalidZip(t *testing.T) {
	svc := newService(&mockLabelRepo{}, map[string]providers.ShippingProvider{}, nil, nil)

	req := validRatesRequest()
	req.ToAddress.Zip = "ABCDE"
	_, svcErr := svc.GetRates(context.Background(), req)
	assert.NotNil(t, svcErr)
	assert.Equal(t, 400, svcErr.StatusCode)
}

func TestGetRates_DefaultOrigin(t *testing.T) {
	captured := &mockProvider{name: "shippo", rates: []models.Rate{{ObjectID: "r1", Provider: "shippo"}}}
	provs := map[string]providers.ShippingProvider{"shippo": captured}
	origin := &models.Address{Name: "Warehouse", Street1: "9 Dock Rd", City: "Oakland", State: "CA", Zip: "94607"}
	svc := services.NewShippingService(&mockLabelRepo{}, provs, nil, nil, "", "PDF", origin, zap.NewNop())

	req := validRatesRequest()
	req.FromAddress = models.Address{}
	set, svcErr := svc.GetRates(context.Background(), req)
	assert.Nil(t, svcErr)
	assert.Len(t, set.Results["shippo"], 1)
	assert.Equal(t, "9 Dock Rd", captured.lastFrom.Street1)
}

func TestGetRates_MissingFromAddressWithoutOrigin(t *testing.T) {
	svc := newService(&mockLabelRepo{}, map[string]providers.ShippingProvider{}, nil, nil)

	req := validRatesRequest()
	req.FromAddress = models.Address{}
	_, svcErr := svc.GetRates(context.Background(), req)
	assert.NotNil(t, svcErr)
	assert.Equal(t, 400, svcErr.StatusCode)
	assert.Contains(t, svcErr.Message, "from_address")
}

// ---- PurchaseLabel ----

func labelServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	}))
}

func TestPurchaseLabel_Success(t *testing.T) {
	srv := labelServer(t)
	defer srv.Close()

	repo := &mockLabelRepo{}
	uploader := &mockUploader{link: "https://bucket.s3.amazonaws.com/label.pdf?sig=x"}
	sns := &mockSNS{}
	provs := map[string]providers.ShippingProvider{
		"shippo": &mockProvider{name: "shippo", label: models.ShippingLabel{
			TrackingNumber: "TRK1",
			LabelURL:       srv.URL + "/label.pdf",
			Carrier:        "USPS",
			Service:        "Priority Mail",
			Cost:           8.50,
			Currency:       "USD",
			CreatedAt:      time.Now(),
		}},
	}
	svc := newService(repo, provs, uploader, sns)

	result, svcErr := svc.PurchaseLabel(context.Background(), &models.PurchaseRequest{
		RateID:   "rate_1",
		Provider: "shippo",
		ToAddress: models.Address{
			Name: "Jane Doe", Street1: "2 B St", City: "NY", State: "NY", Zip: "10001",
		},
	})

	assert.Nil(t, svcErr)
	assert.Empty(t, result.Warning)
	assert.Equal(t, uploader.link, result.FileLink)
	assert.NotEmpty(t, result.RecordID)

	if assert.Len(t, repo.created, 1) {
		rec := repo.created[0]
		assert.Equal(t, "TRK1", rec.TrackingNumber)
		assert.Equal(t, "shippo", rec.Provider)
		assert.Equal(t, uploader.link, rec.LabelLink)
	}
	assert.Len(t, sns.published, 1)

	if assert.Len(t, uploader.keys, 1) {
		key := uploader.keys[0]
		assert.Contains(t, key, "USPS")
		assert.Contains(t, key, "TRK1")
		assert.Contains(t, key, "Jane-Doe")
		assert.Contains(t, key, ".pdf")
	}
}

func TestPurchaseLabel_UploadFailureDegradesToWarning(t *testing.T) {
	srv := labelServer(t)
	defer srv.Close()

	repo := &mockLabelRepo{}
	uploader := &mockUploader{uploadErr: errors.New("bucket unreachable")}
	provs := map[string]providers.ShippingProvider{
		"shippo": &mockProvider{name: "shippo", label: models.ShippingLabel{
			TrackingNumber: "TRK2",
			LabelURL:       srv.URL + "/label.pdf",
			Carrier:        "USPS",
		}},
	}
	svc := newService(repo, provs, uploader, nil)

	result, svcErr := svc.PurchaseLabel(context.Background(), &models.PurchaseRequest{
		RateID: "rate_2", Provider: "shippo",
	})

	assert.Nil(t, svcErr)
	assert.NotEmpty(t, result.Warning)
	assert.Empty(t, result.FileLink)
	assert.Len(t, repo.created, 1)
}

func TestPurchaseLabel_NoUploaderConfigured(t *testing.T) {
	repo := &mockLabelRepo{}
	provs := map[string]providers.ShippingProvider{
		"shippo": &mockProvider{name: "shippo", label: models.ShippingLabel{TrackingNumber: "TRK3"}},
	}
	svc := newService(repo, provs, nil, nil)

	result, svcErr := svc.PurchaseLabel(context.Background(), &models.PurchaseRequest{
		RateID: "rate_3", Provider: "shippo",
	})

	assert.Nil(t, svcErr)
	assert.NotEmpty(t, result.Warning)
	assert.Len(t, repo.created, 1)
}

func TestPurchaseLabel_UnknownProvider(t *testing.T) {
	svc := newService(&mockLabelRepo{}, map[string]providers.ShippingProvider{}, nil, nil)

	_, svcErr := svc.PurchaseLabel(context.Background(), &models.PurchaseRequest{
		RateID: "r", Provider: "pigeon",
	})
	assert.NotNil(t, svcErr)
	assert.Equal(t, 400, svcErr.StatusCode)
}

func TestPurchaseLabel_ProviderError(t *testing.T) {
	provs := map[string]providers.ShippingProvider{
		"shippo": &mockProvider{name: "shippo", labelErr: &providers.PurchaseError{Provider: "shippo", Message: "Rate expired"}},
	}
	svc := newService(&mockLabelRepo{}, provs, nil, nil)

	_, svcErr := svc.PurchaseLabel(context.Background(), &models.PurchaseRequest{
		RateID: "r", Provider: "shippo",
	})
	assert.NotNil(t, svcErr)
	assert.Equal(t, 502, svcErr.StatusCode)
}

func TestPurchaseLabel_PersistFailureIsFatal(t *testing.T) {
	provs := map[string]providers.ShippingProvider{
		"shippo": &mockProvider{name: "shippo", label: models.ShippingLabel{TrackingNumber: "TRK4"}},
	}
	svc := newService(&mockLabelRepo{createErr: errors.New("db down")}, provs, nil, nil)

	_, svcErr := svc.PurchaseLabel(context.Background(), &models.PurchaseRequest{
		RateID: "r", Provider: "shippo",
	})
	assert.NotNil(t, svcErr)
	assert.Equal(t, 500, svcErr.StatusCode)
}

// ---- ValidateAddress ----

func TestValidateAddress_AutoPrefersShippo(t *testing.T) {
	shippo := &mockProvider{name: "shippo", validation: models.ValidationResult{IsValid: true}}
	easypost := &mockProvider{name: "easypost", validation: models.ValidationResult{IsValid: false}}
	provs := map[string]providers.ShippingProvider{"shippo": shippo, "easypost": easypost}
	svc := newService(&mockLabelRepo{}, provs, nil, nil)

	result, svcErr := svc.ValidateAddress(context.Background(), &models.ValidateRequest{
		Address:  models.Address{Name: "J", Street1: "1 A", City: "SF", State: "CA", Zip: "94105"},
		Provider: "auto",
	})
	assert.Nil(t, svcErr)
	assert.True(t, result.IsValid)
}

func TestValidateAddress_AutoFallsBackToEasyPost(t *testing.T) {
	easypost := &mockProvider{name: "easypost", validation: models.ValidationResult{IsValid: true}}
	provs := map[string]providers.ShippingProvider{"easypost": easypost}
	svc := newService(&mockLabelRepo{}, provs, nil, nil)

	result, svcErr := svc.ValidateAddress(context.Background(), &models.ValidateRequest{
		Address: models.Address{Name: "J", Street1: "1 A", City: "SF", State: "CA", Zip: "94105"},
	})
	assert.Nil(t, svcErr)
	assert.True(t, result.IsValid)
}

func TestValidateAddress_NoProviderConfigured(t *testing.T) {
	svc := newService(&mockLabelRepo{}, map[string]providers.ShippingProvider{}, nil, nil)

	_, svcErr := svc.ValidateAddress(context.Background(), &models.ValidateRequest{
		Address: models.Address{Name: "J", Street1: "1 A", City: "SF", State: "CA", Zip: "94105"},
	})
	assert.NotNil(t, svcErr)
	assert.Equal(t, 503, svcErr.StatusCode)
}

// ---- TrackShipment ----

func TestTrackShipment_UsesStoredCarrier(t *testing.T) {
	provider := &mockProvider{name: "shippo", tracking: models.TrackingStatus{Status: "TRANSIT"}}
	repo := &mockLabelRepo{byTracking: &models.LabelRecord{Carrier: "USPS"}}
	svc := newService(repo, map[string]providers.ShippingProvider{"shippo": provider}, nil, nil)

	status, svcErr := svc.TrackShipment(context.Background(), "shippo", "TRK1")
	assert.Nil(t, svcErr)
	assert.Equal(t, "TRANSIT", status.Status)
}

func TestTrackShipment_UnknownProvider(t *testing.T) {
	svc := newService(&mockLabelRepo{}, map[string]providers.ShippingProvider{}, nil, nil)

	_, svcErr := svc.TrackShipment(context.Background(), "nope", "TRK1")
	assert.NotNil(t, svcErr)
	assert.Equal(t, 400, svcErr.StatusCode)
}

func TestTrackShipment_ProviderWithoutTracking(t *testing.T) {
	p := &noTrackProvider{name: "shipengine"}
	svc := newService(&mockLabelRepo{}, map[string]providers.ShippingProvider{"shipengine": p}, nil, nil)

	_, svcErr := svc.TrackShipment(context.Background(), "shipengine", "TRK1")
	assert.NotNil(t, svcErr)
	assert.Equal(t, 400, svcErr.StatusCode)
}

// ---- History ----

func TestHistory_DateRange(t *testing.T) {
	repo := &mockLabelRepo{rangeRecs: []models.LabelRecord{{TrackingNumber: "TRK1"}}}
	svc := newService(repo, map[string]providers.ShippingProvider{}, nil, nil)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	records, total, svcErr := svc.History(context.Background(), services.HistoryQuery{From: &from})
	assert.Nil(t, svcErr)
	assert.Equal(t, int64(1), total)
	assert.Len(t, records, 1)
}

func TestHistory_Paginated(t *testing.T) {
	repo := &mockLabelRepo{allRecs: []models.LabelRecord{{TrackingNumber: "A"}, {TrackingNumber: "B"}}, allTotal: 2}
	svc := newService(repo, map[string]providers.ShippingProvider{}, nil, nil)

	records, total, svcErr := svc.History(context.Background(), services.HistoryQuery{Page: 1, Limit: 20})
	assert.Nil(t, svcErr)
	assert.Equal(t, int64(2), total)
	assert.Len(t, records, 2)
}
