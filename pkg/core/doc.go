// Package core provides the fundamental types and interfaces for the jobnik engine.
//
// This package contains:
//   - Job, Stage and Task models with GORM annotations
//   - Storage interface defining the persistence contract
//   - Event types emitted by the manager
//   - The typed Error carrying a response Code
//
// Most users should import the root package github.com/MapColonies/jobnik
// instead of this package directly.
package core
