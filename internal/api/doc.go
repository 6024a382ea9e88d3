// Package api provides the venue REST client used for point-in-time
// requests: instrument definitions, historical trades and bars. Responses
// are converted to model types; the client keeps a cache of the latest
// instrument definitions.
package api
