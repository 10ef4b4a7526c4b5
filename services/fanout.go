package services

import (
	"context"
	"time"

	"shipping-gateway/models"
	"shipping-gateway/providers"

	"go.uber.org/zap"
)

// aggregateTimeout bounds the whole rate fan-out. It is longer than the
// per-provider HTTP client timeout so a slow provider fails on its own
// before the aggregate deadline collects the stragglers.
const aggregateTimeout = 9 * time.Second

// RateSet is the outcome of one fan-out: every configured provider
// lands in exactly one of Results or Errors.
type RateSet struct {
	Results map[string][]models.Rate
	Errors  map[string]string
}

// fetchAllRates queries all providers concurrently and collects per-provider
// outcomes. Providers that miss the aggregate deadline are recorded as
// timed out.
func fetchAllRates(ctx context.Context, provs map[string]providers.ShippingProvider, from, to models.Address, parcel models.Parcel, logger *zap.Logger) RateSet {
	ctx, cancel := context.WithTimeout(ctx, aggregateTimeout)
	defer cancel()

	type result struct {
		provider string
		rates    []models.Rate
		err      error
	}

	resultCh := make(chan result, len(provs))

	for name, p := range provs {
		go func(name string, p providers.ShippingProvider) {
			rates, err := p.GetRates(ctx, from, to, parcel)
			resultCh <- result{provider: name, rates: rates, err: err}
		}(name, p)
	}

	set := RateSet{
		Results: make(map[string][]models.Rate),
		Errors:  make(map[string]string),
	}

	pending := make(map[string]struct{}, len(provs))
	for name := range provs {
		pending[name] = struct{}{}
	}

	for len(pending) > 0 {
		select {
		case res := <-resultCh:
			delete(pending, res.provider)
			if res.err != nil {
				logger.Warn("Provider rate request failed",
					zap.String("provider", res.provider),
					zap.Error(res.err))
				set.Errors[res.provider] = res.err.Error()
				continue
			}
			set.Results[res.provider] = res.rates
		case <-ctx.Done():
			for name := range pending {
				logger.Warn("Provider rate request timed out", zap.String("provider", name))
				set.Errors[name] = "Request timed out"
				delete(pending, name)
			}
		}
	}

	return set
}
