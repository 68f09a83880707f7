// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

// countingService is a suture.Service that counts its runs and can be told
// to fail a number of times before settling.
type countingService struct {
	name     string
	starts   atomic.Int32
	stops    atomic.Int32
	failures atomic.Int32
	maxFails int32
}

func newCountingService(name string, maxFails int32) *countingService {
	return &countingService{name: name, maxFails: maxFails}
}

func (s *countingService) Serve(ctx context.Context) error {
	s.starts.Add(1)
	defer s.stops.Add(1)

	if s.failures.Add(1) <= s.maxFails {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string {
	return s.name
}
