// Package auth verifies bearer tokens and gates API routes by scope.
// Viewers read session status and telemetry; controllers additionally
// drive the radio. The health endpoint is the only unauthenticated
// route.
package auth
