// Package clientip extracts the real client IP from HTTP requests behind
// common proxy setups. The stream package uses it as the per-source
// admission key.
package clientip
