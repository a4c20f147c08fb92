// Package handler provides the admin HTTP request handlers.
package handler
