// Package server assembles the gateway's HTTP surface.
//
// Requests are dispatched in this order: the health, readiness and version
// probes, the metrics endpoint, the endpoint management API under
// /config/pass_through_endpoint, and finally the pass-through route table,
// which answers 404 for unknown paths.
//
// The management API persists definitions through the endpoint registry
// and reinstalls the route table after every successful mutation, so a
// created endpoint serves traffic as soon as the call returns. Definitions
// from the configuration file are listed but cannot be changed.
//
// Serve shuts down gracefully when its context is cancelled; open streams
// get the configured shutdown timeout to finish.
package server
