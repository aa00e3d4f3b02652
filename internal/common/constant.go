// Package common contains shared constants and sentinel errors used across
// ScanVault components.
package common

// AuthorizationHeaderName carries "Bearer <token>" for both user requests and
// the worker trigger.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix is the scheme prefix expected in AuthorizationHeaderName.
const BearerPrefix = "Bearer "
