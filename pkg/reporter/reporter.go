// Package reporter derives WAN rates from the router's network status.
package reporter

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fexd12/prometheus-tenda-exporter/pkg/tenda"
)

// StatusSource returns the router's decoded network status.
type StatusSource interface {
	NetworkStatus(ctx context.Context) (tenda.NetworkStatus, error)
}

// Rates are the current WAN rates in KB/s.
type Rates struct {
	UploadKBps   float64
	DownloadKBps float64
}

type Reporter struct {
	source StatusSource
}

func New(source StatusSource) *Reporter {
	return &Reporter{source: source}
}

// UploadRateKBps returns the current upload rate, or 0 on any failure.
func (r *Reporter) UploadRateKBps(ctx context.Context) float64 {
	return r.rateOrZero(ctx, tenda.FieldWANUpFlux)
}

// DownloadRateKBps returns the current download rate, or 0 on any failure.
func (r *Reporter) DownloadRateKBps(ctx context.Context) float64 {
	return r.rateOrZero(ctx, tenda.FieldWANDownFlux)
}

// Sample reads both rates from a single status request. On error the
// returned rates are zero.
func (r *Reporter) Sample(ctx context.Context) (Rates, error) {
	status, err := r.source.NetworkStatus(ctx)
	if err != nil {
		return Rates{}, errors.Wrap(err, "fetch network status")
	}

	up, err := rate(status, tenda.FieldWANUpFlux)
	if err != nil {
		return Rates{}, err
	}
	down, err := rate(status, tenda.FieldWANDownFlux)
	if err != nil {
		return Rates{}, err
	}

	return Rates{UploadKBps: up, DownloadKBps: down}, nil
}

func (r *Reporter) rateOrZero(ctx context.Context, field string) float64 {
	log := logrus.WithField("field", field)

	status, err := r.source.NetworkStatus(ctx)
	if err != nil {
		log.WithError(err).Warn("unable to fetch network status, reporting zero")
		return 0
	}

	value, err := rate(status, field)
	if err != nil {
		log.WithError(err).Warn("unable to parse rate, reporting zero")
		return 0
	}
	return value
}

// rate reads field from the first WAN entry. A status without network data
// yields 0.
func rate(status tenda.NetworkStatus, field string) (float64, error) {
	flux, ok := status.WANFlux(field)
	if !ok {
		return 0, nil
	}

	value, err := tenda.ParseFlux(flux)
	if err != nil {
		return 0, errors.Wrap(err, field)
	}
	return value, nil
}
