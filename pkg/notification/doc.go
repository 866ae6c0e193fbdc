// Package notification describes the inbound notice event contract and the
// catalogue of known notification kinds.
package notification
