// Package tracker keeps the last known set of clients associated with the
// router for presence detection.
package tracker

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fexd12/prometheus-tenda-exporter/pkg/tenda"
)

// DeviceSource lists the clients currently associated with the router.
type DeviceSource interface {
	ConnectedDevices(ctx context.Context) (tenda.Devices, error)
}

// Changes lists the MACs that appeared or disappeared between two scans.
type Changes struct {
	Arrived  []string
	Departed []string
}

func (c Changes) Empty() bool {
	return len(c.Arrived) == 0 && len(c.Departed) == 0
}

type Scanner struct {
	source DeviceSource

	mu   sync.RWMutex
	last tenda.Devices
}

func NewScanner(source DeviceSource) *Scanner {
	return &Scanner{
		source: source,
		last:   tenda.Devices{},
	}
}

// Update refreshes the results and reports what changed. On error the
// previous results are kept.
func (s *Scanner) Update(ctx context.Context) (Changes, error) {
	log := logrus.WithField("action", "scan")

	log.Debug("loading connected clients")
	devices, err := s.source.ConnectedDevices(ctx)
	if err != nil {
		return Changes{}, errors.Wrap(err, "scan devices")
	}

	s.mu.Lock()
	changes := diff(s.last, devices)
	s.last = devices
	s.mu.Unlock()

	for _, mac := range changes.Arrived {
		log.WithFields(logrus.Fields{"mac": mac, "name": devices[mac]}).Info("device arrived")
	}
	for _, mac := range changes.Departed {
		log.WithField("mac", mac).Info("device departed")
	}

	return changes, nil
}

// Scan refreshes and returns the known clients. A failed refresh is logged and
// treated as no change.
func (s *Scanner) Scan(ctx context.Context) tenda.Devices {
	if _, err := s.Update(ctx); err != nil {
		logrus.WithError(err).Error("unable to scan devices, keeping last results")
	}
	return s.Results()
}

// Results returns a copy of the last successful scan.
func (s *Scanner) Results() tenda.Devices {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(tenda.Devices, len(s.last))
	for mac, name := range s.last {
		results[mac] = name
	}
	return results
}

// LookupName returns the display name recorded for mac by the last scan.
func (s *Scanner) LookupName(mac string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.last[mac]
	return name, ok
}

func (s *Scanner) Records() []tenda.DeviceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.last.Records()
}

func diff(before, after tenda.Devices) Changes {
	var changes Changes
	for mac := range after {
		if _, ok := before[mac]; !ok {
			changes.Arrived = append(changes.Arrived, mac)
		}
	}
	for mac := range before {
		if _, ok := after[mac]; !ok {
			changes.Departed = append(changes.Departed, mac)
		}
	}
	sort.Strings(changes.Arrived)
	sort.Strings(changes.Departed)
	return changes
}
