// Package model contains the records passed between the HTTP layer, the
// session runner and storage.
package model
