package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"shipping-gateway/models"
	"shipping-gateway/providers"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// fakeProvider is a controllable ShippingProvider for fan-out tests. When
// ignoreCtx is set the provider sleeps through cancellation, standing in
// for a call the coordinator has to abandon.
type fakeProvider struct {
	name      string
	rates     []models.Rate
	err       error
	delay     time.Duration
	ignoreCtx bool
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GetRates(ctx context.Context, _, _ models.Address, _ models.Parcel) ([]models.Rate, error) {
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return f.rates, f.err
}

func (f *fakeProvider) PurchaseLabel(_ context.Context, _, _ string) (models.ShippingLabel, error) {
	return models.ShippingLabel{}, errors.New("not implemented")
}

func (f *fakeProvider) ValidateAddress(_ context.Context, _ models.Address) (models.ValidationResult, error) {
	return models.ValidationResult{}, errors.New("not implemented")
}

func fanOut(t *testing.T, provs map[string]providers.ShippingProvider) RateSet {
	t.Helper()
	return fetchAllRates(context.Background(),
		provs,
		models.Address{Name: "From"}, models.Address{Name: "To"},
		models.Parcel{Length: 1, Width: 1, Height: 1, Weight: 1},
		zap.NewNop())
}

func TestFetchAllRates_PartitionsProviders(t *testing.T) {
	provs := map[string]providers.ShippingProvider{
		"shippo":   &fakeProvider{name: "shippo", rates: []models.Rate{{ObjectID: "r1", Provider: "shippo"}}},
		"easypost": &fakeProvider{name: "easypost", err: errors.New("boom")},
		"easyship": &fakeProvider{name: "easyship", rates: []models.Rate{}},
	}

	set := fanOut(t, provs)

	assert.Len(t, set.Results, 2)
	assert.Len(t, set.Errors, 1)
	assert.Contains(t, set.Results, "shippo")
	assert.Contains(t, set.Results, "easyship")
	assert.Equal(t, "boom", set.Errors["easypost"])

	// Every provider lands in exactly one map.
	for name := range provs {
		_, inResults := set.Results[name]
		_, inErrors := set.Errors[name]
		assert.True(t, inResults != inErrors, "provider %s must appear in exactly one map", name)
	}
}

func TestFetchAllRates_FailureDoesNotAbortSiblings(t *testing.T) {
	provs := map[string]providers.ShippingProvider{
		"fast": &fakeProvider{name: "fast", err: errors.New("immediate failure")},
		"slow": &fakeProvider{name: "slow", delay: 50 * time.Millisecond, rates: []models.Rate{{ObjectID: "r2"}}},
	}

	set := fanOut(t, provs)

	assert.Contains(t, set.Errors, "fast")
	assert.Contains(t, set.Results, "slow")
	assert.Len(t, set.Results["slow"], 1)
}

func TestFetchAllRates_ZeroProviders(t *testing.T) {
	set := fanOut(t, map[string]providers.ShippingProvider{})

	assert.NotNil(t, set.Results)
	assert.NotNil(t, set.Errors)
	assert.Empty(t, set.Results)
	assert.Empty(t, set.Errors)
}

func TestFetchAllRates_DeadlineProducesTimeoutEntries(t *testing.T) {
	provs := map[string]providers.ShippingProvider{
		"quick": &fakeProvider{name: "quick", rates: []models.Rate{{ObjectID: "r3"}}},
		"stuck": &fakeProvider{name: "stuck", delay: 500 * time.Millisecond, ignoreCtx: true},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	set := fetchAllRates(ctx, provs,
		models.Address{}, models.Address{},
		models.Parcel{Length: 1, Width: 1, Height: 1, Weight: 1},
		zap.NewNop())

	assert.Contains(t, set.Results, "quick")
	assert.Equal(t, "Request timed out", set.Errors["stuck"])
}
