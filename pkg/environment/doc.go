// Package environment names the deployment environments and carries the current
// one through request contexts.
//
// APP_ENV is parsed with Parse (or directly through UnmarshalText when loading
// config structs), so "prod" and "production" are equivalent. Unknown values
// fall back to development.
package environment
