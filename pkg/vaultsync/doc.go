/*
Package vaultsync provides an offline-first synchronization engine that
keeps a local, durable copy of a user's records consistent with a
remote authoritative store under intermittent connectivity.

# Overview

The engine reconciles a local store (SQLite or in-memory) against a
remote CRUD gateway. Local mutations made while offline are held as
Pending records under temporary ids and replayed on the next pass;
remote state is pulled in full when nothing is pending. Every remote
call goes through a retry wrapper with per-attempt deadlines,
exponential backoff, and jitter.

Reconciliation is single-flight: at most one pass runs at a time, and
a request arriving while one is in flight coalesces into a no-op
rather than queueing. Per-record push failures never abort a pass;
only local store failures do.

# Basic Usage

Construct an engine with injected dependencies, then sync:

	st, err := store.NewSQLiteStore("vault.db")
	if err != nil {
	    log.Fatal(err)
	}
	defer st.Close()

	gw := remote.NewHTTPGateway("https://api.example.com")
	monitor := netmon.New()

	engine := vaultsync.New(st, gw,
	    vaultsync.WithMonitor(monitor),
	)

	// Created while offline: temporary id, Pending status.
	rec, _ := engine.Create(ctx, payload)

	// Reconnect; the monitor triggers a reconciliation pass.
	monitor.SetOnline(true)

A pass reports its outcome without failing on individual records:

	report, err := engine.Sync(ctx)
	if err != nil {
	    // local store failure, pass aborted
	}
	if report.Failed > 0 {
	    // some records are still Pending; the next pass retries them
	}

# Design notes

The pull path is a full-state fetch and diff, not an incremental
change feed. Pending records always shadow the remote view until they
are pushed. The Conflict status exists in the data model but is
reserved; no code path produces it.
*/
package vaultsync
