// Package tether provides a client-resident session runtime that keeps
// a persistent bidirectional connection to a server, correlates
// asynchronous request/response pairs, and routes pushed values to
// registered UI bindings.
//
// The core code is in package 'session', and a command-line client is
// in 'cmd/tether'.
package tether
