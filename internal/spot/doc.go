// Package spot owns the set of active spot announcements and their
// expiry. Timed spots get a deadline bounded by the station's
// scheduled end; a periodic sweep clears expired records. While the
// session is away from Connected the manager keeps its bookkeeping but
// issues no network intents, and it never re-announces spots on
// reconnect.
package spot
