package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"shipping-gateway/models"
	"shipping-gateway/pkg/aws"
	"shipping-gateway/providers"
	"shipping-gateway/repository"

	"go.uber.org/zap"
)

// labelDownloadTimeout bounds the fetch of the provider-hosted PDF, which is
// a separate call after the purchase itself.
const labelDownloadTimeout = 10 * time.Second

// ServiceError is a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string { return e.Message }

// PurchaseResult is the full outcome of a label purchase: the label itself,
// the persisted history record, and an optional warning when the durable
// copy of the PDF could not be stored.
type PurchaseResult struct {
	Label    models.ShippingLabel
	RecordID string
	FileID   string
	FileLink string
	Warning  string
}

// HistoryQuery filters the purchase history listing.
type HistoryQuery struct {
	From  *time.Time
	To    *time.Time
	Page  int
	Limit int
}

// ShippingService defines the business logic interface.
type ShippingService interface {
	GetRates(ctx context.Context, req *models.RatesRequest) (RateSet, *ServiceError)
	PurchaseLabel(ctx context.Context, req *models.PurchaseRequest) (*PurchaseResult, *ServiceError)
	ValidateAddress(ctx context.Context, req *models.ValidateRequest) (*models.ValidationResult, *ServiceError)
	TrackShipment(ctx context.Context, provider, trackingNumber string) (*models.TrackingStatus, *ServiceError)
	History(ctx context.Context, q HistoryQuery) ([]models.LabelRecord, int64, *ServiceError)
}

type shippingServiceImpl struct {
	repo        repository.LabelRepository
	providers   map[string]providers.ShippingProvider
	uploader    aws.LabelUploader
	snsClient   aws.SNSPublisher
	snsTopicArn string
	labelFormat string
	origin      *models.Address
	downloader  *http.Client
	logger      *zap.Logger
}

// NewShippingService creates a new ShippingService. uploader and snsClient
// may be nil; the corresponding steps degrade rather than fail. origin, when
// non-nil, is the default sender address for requests that omit one.
func NewShippingService(
	repo repository.LabelRepository,
	provs map[string]providers.ShippingProvider,
	uploader aws.LabelUploader,
	snsClient aws.SNSPublisher,
	snsTopicArn string,
	labelFormat string,
	origin *models.Address,
	logger *zap.Logger,
) ShippingService {
	if labelFormat == "" {
		labelFormat = "PDF"
	}
	return &shippingServiceImpl{
		repo:        repo,
		providers:   provs,
		uploader:    uploader,
		snsClient:   snsClient,
		snsTopicArn: snsTopicArn,
		labelFormat: labelFormat,
		origin:      origin,
		downloader:  &http.Client{Timeout: labelDownloadTimeout},
		logger:      logger,
	}
}

// GetRates fans the quote out to every configured provider and returns the
// per-provider results and errors. Partial success is success; only a total
// failure across one or more configured providers is an error.
func (s *shippingServiceImpl) GetRates(ctx context.Context, req *models.RatesRequest) (RateSet, *ServiceError) {
	if req.FromAddress.Street1 == "" {
		if s.origin == nil {
			return RateSet{}, &ServiceError{StatusCode: 400, Message: "from_address is required"}
		}
		req.FromAddress = *s.origin
	}
	req.FromAddress.ApplyDefaults()
	req.ToAddress.ApplyDefaults()
	req.Parcel.ApplyDefaults()

	if req.FromAddress.Country == "US" && !models.ValidZIP(req.FromAddress.Zip) {
		return RateSet{}, &ServiceError{StatusCode: 400, Message: "Invalid from_address ZIP code"}
	}
	if req.ToAddress.Country == "US" && !models.ValidZIP(req.ToAddress.Zip) {
		return RateSet{}, &ServiceError{StatusCode: 400, Message: "Invalid to_address ZIP code"}
	}

	set := fetchAllRates(ctx, s.providers, req.FromAddress, req.ToAddress, req.Parcel, s.logger)

	if len(s.providers) > 0 && len(set.Results) == 0 {
		s.logger.Error("All providers failed to return rates", zap.Int("providers", len(s.providers)))
		return set, &ServiceError{StatusCode: 502, Message: "Failed to retrieve rates from all providers"}
	}

	total := 0
	for _, rates := range set.Results {
		total += len(rates)
	}
	s.logger.Info("Rate fan-out complete",
		zap.Int("providers_ok", len(set.Results)),
		zap.Int("providers_failed", len(set.Errors)),
		zap.Int("rates", total),
	)
	return set, nil
}

// PurchaseLabel buys a label from the named provider, archives the PDF, and
// appends the purchase to history. Upload failure degrades to a warning;
// persistence failure does not, since history is the system of record.
func (s *shippingServiceImpl) PurchaseLabel(ctx context.Context, req *models.PurchaseRequest) (*PurchaseResult, *ServiceError) {
	provider, ok := s.providers[req.Provider]
	if !ok {
		return nil, &ServiceError{StatusCode: 400, Message: fmt.Sprintf("Unknown or unconfigured provider: %s", req.Provider)}
	}

	format := req.Format
	if format == "" {
		format = s.labelFormat
	}

	label, err := provider.PurchaseLabel(ctx, req.RateID, format)
	if err != nil {
		s.logger.Error("Label purchase failed",
			zap.String("provider", req.Provider),
			zap.String("rate_id", req.RateID),
			zap.Error(err))
		return nil, &ServiceError{StatusCode: 502, Message: "Failed to purchase label: " + err.Error()}
	}

	result := &PurchaseResult{Label: label}

	if s.uploader == nil {
		result.Warning = "Label storage is not configured; label_url is temporary"
	} else if fileID, link, upErr := s.archiveLabel(ctx, label, req.ToAddress.Name); upErr != nil {
		s.logger.Warn("Label archive failed, continuing with provider URL", zap.Error(upErr))
		result.Warning = "Label purchased but could not be archived: " + upErr.Error()
	} else {
		result.FileID = fileID
		result.FileLink = link
	}

	fromBytes, _ := json.Marshal(req.FromAddress)
	toBytes, _ := json.Marshal(req.ToAddress)

	record := &models.LabelRecord{
		TrackingNumber:  label.TrackingNumber,
		Provider:        req.Provider,
		Carrier:         label.Carrier,
		Service:         label.Service,
		Cost:            label.Cost,
		Currency:        label.Currency,
		LabelFileID:     result.FileID,
		LabelLink:       result.FileLink,
		FromAddressJSON: string(fromBytes),
		ToAddressJSON:   string(toBytes),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Error("Failed to persist label record", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Message: "Label purchased but history could not be saved"}
	}
	result.RecordID = record.ID.String()

	s.logger.Info("Label purchased",
		zap.String("provider", req.Provider),
		zap.String("tracking_number", label.TrackingNumber),
		zap.String("record_id", result.RecordID),
	)

	s.publishEvent(ctx, models.LabelPurchasedEvent{
		EventType:      "label_purchased",
		RecordID:       result.RecordID,
		Provider:       req.Provider,
		TrackingNumber: label.TrackingNumber,
		Carrier:        label.Carrier,
		LabelLink:      result.FileLink,
		Timestamp:      time.Now(),
	})

	return result, nil
}

// ValidateAddress checks the address against one provider. "auto" picks
// Shippo when configured, falling back to EasyPost.
func (s *shippingServiceImpl) ValidateAddress(ctx context.Context, req *models.ValidateRequest) (*models.ValidationResult, *ServiceError) {
	req.Address.ApplyDefaults()

	name := req.Provider
	if name == "" || name == "auto" {
		switch {
		case s.providers[providers.ProviderShippo] != nil:
			name = providers.ProviderShippo
		case s.providers[providers.ProviderEasyPost] != nil:
			name = providers.ProviderEasyPost
		default:
			return nil, &ServiceError{StatusCode: 503, Message: "No address validation provider configured"}
		}
	}

	provider, ok := s.providers[name]
	if !ok {
		return nil, &ServiceError{StatusCode: 400, Message: fmt.Sprintf("Unknown or unconfigured provider: %s", name)}
	}

	result, err := provider.ValidateAddress(ctx, req.Address)
	if err != nil {
		s.logger.Error("Address validation failed", zap.String("provider", name), zap.Error(err))
		return nil, &ServiceError{StatusCode: 502, Message: "Failed to validate address: " + err.Error()}
	}
	return &result, nil
}

// TrackShipment fetches the current tracking status from a provider that
// supports tracking.
func (s *shippingServiceImpl) TrackShipment(ctx context.Context, providerName, trackingNumber string) (*models.TrackingStatus, *ServiceError) {
	provider, ok := s.providers[providerName]
	if !ok {
		return nil, &ServiceError{StatusCode: 400, Message: fmt.Sprintf("Unknown or unconfigured provider: %s", providerName)}
	}
	tracker, ok := provider.(providers.ShipmentTracker)
	if !ok {
		return nil, &ServiceError{StatusCode: 400, Message: fmt.Sprintf("Provider %s does not support tracking", providerName)}
	}

	carrier := ""
	if rec, err := s.repo.FindByTrackingNumber(ctx, trackingNumber); err == nil && rec != nil {
		carrier = rec.Carrier
	}

	status, err := tracker.TrackShipment(ctx, carrier, trackingNumber)
	if err != nil {
		s.logger.Error("TrackShipment failed",
			zap.String("provider", providerName),
			zap.String("tracking_number", trackingNumber),
			zap.Error(err))
		return nil, &ServiceError{StatusCode: 502, Message: "Failed to fetch tracking status: " + err.Error()}
	}
	return &status, nil
}

// History lists purchase records, optionally bounded by a date range.
func (s *shippingServiceImpl) History(ctx context.Context, q HistoryQuery) ([]models.LabelRecord, int64, *ServiceError) {
	if q.From != nil || q.To != nil {
		from := time.Time{}
		to := time.Now().Add(24 * time.Hour)
		if q.From != nil {
			from = *q.From
		}
		if q.To != nil {
			to = *q.To
		}
		records, err := s.repo.FindByDateRange(ctx, from, to)
		if err != nil {
			s.logger.Error("History query failed", zap.Error(err))
			return nil, 0, &ServiceError{StatusCode: 500, Message: "Failed to load purchase history"}
		}
		return records, int64(len(records)), nil
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}
	records, total, err := s.repo.FindAll(ctx, page, limit)
	if err != nil {
		s.logger.Error("History query failed", zap.Error(err))
		return nil, 0, &ServiceError{StatusCode: 500, Message: "Failed to load purchase history"}
	}
	return records, total, nil
}

// archiveLabel downloads the provider-hosted PDF and stores a durable copy,
// returning the storage key and shareable link.
func (s *shippingServiceImpl) archiveLabel(ctx context.Context, label models.ShippingLabel, toName string) (string, string, error) {
	data, err := s.downloadLabel(ctx, label.LabelURL)
	if err != nil {
		return "", "", err
	}

	key := labelKey(label, toName)
	link, err := s.uploader.UploadLabel(ctx, key, data)
	if err != nil {
		return "", "", err
	}
	return key, link, nil
}

func (s *shippingServiceImpl) downloadLabel(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build label download request: %w", err)
	}
	resp, err := s.downloader.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download label: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("label download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read label body: %w", err)
	}
	return data, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// labelKey builds the storage key:
// YYYY-MM-DD_{carrier}[_{service}]_{tracking}_{recipient}.pdf
func labelKey(label models.ShippingLabel, toName string) string {
	parts := []string{
		time.Now().Format("2006-01-02"),
		safeKeyPart(label.Carrier),
	}
	if label.Service != "" {
		parts = append(parts, safeKeyPart(label.Service))
	}
	parts = append(parts, safeKeyPart(label.TrackingNumber))
	if toName != "" {
		parts = append(parts, safeKeyPart(toName))
	}
	return strings.Join(parts, "_") + ".pdf"
}

func safeKeyPart(s string) string {
	return unsafeKeyChars.ReplaceAllString(strings.TrimSpace(s), "-")
}

// publishEvent marshals an event and publishes it to SNS (non-fatal on error).
func (s *shippingServiceImpl) publishEvent(ctx context.Context, event interface{}) {
	if s.snsClient == nil || s.snsTopicArn == "" {
		s.logger.Debug("SNS not configured, skipping event publish")
		return
	}
	b, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal SNS event", zap.Error(err))
		return
	}
	if err := s.snsClient.Publish(ctx, s.snsTopicArn, b); err != nil {
		s.logger.Error("Failed to publish SNS event", zap.Error(err))
		return
	}
	s.logger.Info("Published SNS event", zap.String("topic", s.snsTopicArn))
}
