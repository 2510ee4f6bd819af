package vaultsync

import (
	"context"
	"fmt"

	"github.com/randalmurphal/vaultsync/pkg/vaultsync/record"
)

// Cache keys for remote read responses. Invalidation clears by prefix,
// so every read key shares readKeyPrefix.
const (
	readKeyPrefix = "remote:"
	listKey       = readKeyPrefix + "list"
)

// CachedList returns the remote record set through the response cache.
//
// A fresh cached response is served without a network call. On a miss
// (absent or expired) the gateway is consulted through the retry
// wrapper and the response cached for the configured lifetime. With no
// cache attached, every call hits the gateway.
func (e *Engine) CachedList(ctx context.Context) ([]record.Record, error) {
	if e.cache != nil {
		if v, ok := e.cache.Get(listKey); ok {
			e.metrics.RecordCacheLookup(ctx, true)
			return cloneRecords(v.([]record.Record)), nil
		}
		e.metrics.RecordCacheLookup(ctx, false)
	}

	res := wrapCall(ctx, e, "list", "", func(ctx context.Context) ([]record.Record, error) {
		return e.gateway.ListRecords(ctx)
	})
	if res.Err != nil {
		return nil, fmt.Errorf("list remote records: %w", res.Err)
	}

	if e.cache != nil {
		e.cache.Set(listKey, cloneRecords(res.Value), e.cacheTTL)
	}
	return res.Value, nil
}

// invalidateReads drops every cached remote read. Called after any
// operation that changes what a read would return.
func (e *Engine) invalidateReads() {
	if e.cache != nil {
		e.cache.Clear(readKeyPrefix)
	}
}

// cloneRecords copies a record slice so cached values stay isolated
// from caller mutation.
func cloneRecords(recs []record.Record) []record.Record {
	out := make([]record.Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}
