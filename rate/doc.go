// Package rate guards the credential endpoints with fixed-window request
// counters on Redis. It is independent of session state: purely a request
// volume guard in front of login and refresh.
package rate
