// Package audit writes an append-only JSONL record of every command
// action the dispatcher performs, with outcome and latency. The log is
// size-rotated so long-running sessions cannot fill the disk.
package audit
