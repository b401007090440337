// Package redisstub runs an in-process Redis stand-in for tests that
// exercise stream writers through a real go-redis client.
package redisstub
