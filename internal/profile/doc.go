// Package profile translates user intents into TCI command strings for
// a specific radio-control dialect. Formatters are pure: output depends
// only on the selected profile and the intent payload, never on
// connection state or wall-clock time.
package profile
