// Package httpserver contains utilities for HTTP servers using the standard library.
// It includes a collection of middlewares and utilities for returning JSON-formatted responses and errors.
package httpserver

const (
	HeaderXHostID     = "X-Host-Id"
	HeaderContentType = "Content-Type"
	ContentTypeJson   = "application/json; charset=utf-8"
)
