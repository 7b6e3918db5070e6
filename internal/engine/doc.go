// Package engine is remindd's reminder scheduling and delivery core.
//
// # Overview
//
// Given the current calendar event list, the engine decides which reminder
// tiers are due, suppresses duplicates and already-dismissed reminders via
// the persistent store, and feeds a single-slot display queue so exactly
// one reminder is visible at a time.
//
// # Scan passes
//
// Two passes run over the event x tier cross-product:
//
//   - The missed pass runs once per fresh event-list delivery. Per event it
//     promotes at most the single most-recent reminder whose fire time is
//     more than five minutes in the past, so a long-closed process doesn't
//     produce a notification storm on restart.
//   - The due pass runs on a fixed interval (and once when scanning starts).
//     A tier is due when its fire time is between zero and five minutes in
//     the past. Tiers further ahead than five minutes are persisted
//     proactively so a crash between now and the fire time can rehydrate
//     them.
//
// # Actor model
//
// A single goroutine owns the event list, the session dispatch set, the
// queue, the active slot, and both timers. OnEventsUpdated, Tick and
// DismissActive post commands to it; nothing else mutates engine state.
package engine
