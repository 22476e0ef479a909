// Package models defines the persisted document shapes and typed views over
// them. Decoders never trust the stored shape: every field has an explicit
// default when it is missing or of the wrong type.
package models
