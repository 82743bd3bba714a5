// Package api handles incoming HTTP requests, request validation and
// response formatting. It translates HTTP concerns to repository and
// identity operations, and maps their errors to status codes in one place.
package api
