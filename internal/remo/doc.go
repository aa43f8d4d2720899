// Package remo is a thin client for the Nature Remo cloud API.
//
// It fetches devices and sensor values and pushes aircon and light commands.
// Every call is authenticated with a bearer token, bounded by a per-call
// timeout and logged. Failures surface as *APIError, and nothing is retried.
package remo
