// Package source loads events from an ICS calendar feed and hands them to
// the reminder engine. It fetches with HTTP conditional requests backed by
// a small disk cache, parses VEVENTs into model.Event, and refreshes on a
// cron schedule.
package source
