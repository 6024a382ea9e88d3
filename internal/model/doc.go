// Package model defines the shared market-data types exchanged between
// the venue adapters and the data bus.
//
// Conventions:
//   - Prices and sizes: decimal strings as received from the venue
//   - Timestamps: int64 nanoseconds since Unix epoch
//   - IDs: venue-qualified instrument identifiers, uuid.UUID for requests
package model
