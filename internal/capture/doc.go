// Package capture records signal traffic and plays it back.
//
// Two recorders exist: a CSV capture log of incoming events (the replay
// format) and an optional SQLite trace store of all traffic for offline
// inspection. Replay re-feeds captured inputs through the rules under a
// rate-scaled clock, reproducing the original output trace.
package capture
