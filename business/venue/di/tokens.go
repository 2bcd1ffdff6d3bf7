// Package di contains dependency injection tokens for the venue context.
package di

// DI tokens for the venue module.
const (
	VenueA = "venue.A"
	VenueB = "venue.B"
	Store  = "venue.Store"
)
