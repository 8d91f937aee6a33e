// Package command sequences intents into wire commands. Every intent
// is formatted for the active dialect, sent through the session, and
// recorded with outcome and latency. Composite actions decompose into
// a fixed order; send failures propagate unchanged and are never
// retried here.
package command
