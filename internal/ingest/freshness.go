// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package ingest

import "time"

// FreshnessGuard decides whether the async adapter processes a stored
// replay. Objects whose last-modified timestamp precedes the cutoff window
// are skipped so bulk backfills and historical migrations never trigger mass
// reprocessing. A zero cutoff disables the guard.
type FreshnessGuard struct {
	cutoff time.Duration
	now    func() time.Time
}

// NewFreshnessGuard returns a guard with the given cutoff window. now may be
// nil, in which case time.Now is used.
func NewFreshnessGuard(cutoff time.Duration, now func() time.Time) *FreshnessGuard {
	if now == nil {
		now = time.Now
	}
	return &FreshnessGuard{cutoff: cutoff, now: now}
}

// Fresh reports whether an object modified at lastModified is recent enough
// to ingest.
func (g *FreshnessGuard) Fresh(lastModified time.Time) bool {
	if g.cutoff <= 0 {
		return true
	}
	return !lastModified.Before(g.now().Add(-g.cutoff))
}
