// Package sqlerr is the shared classifier for database driver errors.
//
// Repositories pass every failed call through Classify (or ClassifyFor) so
// that callers can branch on a small Code enum instead of SQLSTATE strings,
// and HandleError turns the classified error into an API error.
package sqlerr
