// Package security provides validation, sanitization, and limits for the jobnik engine.
//
// This package includes:
//   - Input validation for stage types, job names, ids and JSON payloads
//   - Error message sanitization before logging handler failures
//   - Clamping functions to enforce safe limits on attempts and concurrency
//
// Most users should import the root package github.com/MapColonies/jobnik
// which re-exports these functions.
package security
