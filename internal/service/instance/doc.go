// Package instance prevents two automation loops from running side by side.
//
// Two loops sharing one configuration would fire every time rule twice, so
// the entry point refuses to start when another process with the same
// executable name is already alive.
package instance
