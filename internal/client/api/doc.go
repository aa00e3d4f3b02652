// Package api is the HTTP client for the scanvault server: the upload
// handshake, text upload, status lookup and a bounded status poller.
//
// # Error Handling
//
// Server answers are mapped onto the sentinels in internal/common so callers
// can use errors.Is: 401 ErrUnauthenticated, 403 ErrForbidden, 404
// ErrNotFound, 400 ErrValidation, 402 *common.QuotaExceededError. Network
// failures and 5xx answers are wrapped with common.ErrTransient.
package api
