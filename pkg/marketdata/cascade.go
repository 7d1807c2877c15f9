// Package marketdata resolves quotes through a layered source cascade:
// the live gateway feed, then a secondary bar provider, then a synthetic
// generator. The cascade always produces a quote; each layer's failure is
// absorbed locally and tagged provenance tells the consumer what it got.
package marketdata

import (
	"context"

	"github.com/quantdesk/tradeterm/pkg/models"
	"github.com/sirupsen/logrus"
)

// Source is one layer of the cascade. A layer signals "unusable" by
// returning an error or a non-positive last price.
type Source interface {
	Name() string
	Quote(ctx context.Context, symbol string) (models.Quote, error)
}

type Cascade struct {
	sources  []Source
	fallback *SyntheticSource
	logger   *logrus.Logger
}

// NewCascade builds a cascade that tries sources in order and falls back
// to the synthetic generator when none yields a usable quote.
func NewCascade(logger *logrus.Logger, fallback *SyntheticSource, sources ...Source) *Cascade {
	return &Cascade{
		sources:  sources,
		fallback: fallback,
		logger:   logger,
	}
}

// Resolve returns a quote for symbol. The error is always nil; it is part
// of the signature so pollers can depend on a fallible resolver interface.
func (c *Cascade) Resolve(ctx context.Context, symbol string) (models.Quote, error) {
	for _, src := range c.sources {
		quote, err := src.Quote(ctx, symbol)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"symbol": symbol,
				"source": src.Name(),
			}).Debug("Quote source unusable, falling through")
			continue
		}
		if quote.Last <= 0 {
			c.logger.WithFields(logrus.Fields{
				"symbol": symbol,
				"source": src.Name(),
			}).Debug("Quote source returned non-positive last, falling through")
			continue
		}
		return quote, nil
	}
	return c.fallback.Generate(symbol), nil
}
