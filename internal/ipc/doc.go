// Package ipc provides pluggable transports carrying "name=value" signal
// messages: stdio (default), TCP client, and websocket client. Transports
// run on their own goroutines and serialize into the driver loop through
// its input queue.
package ipc
