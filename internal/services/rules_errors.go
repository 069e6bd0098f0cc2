package services

import "errors"

var (
	// ErrRuleValidation flags rule input rejected before any remote call was made.
	ErrRuleValidation = errors.New("rules service: invalid rule input")
	// ErrRuleNotFound indicates no stored rule matches the requested slug.
	ErrRuleNotFound = errors.New("rules service: rule not found")
	// ErrRemoteMutation indicates the discount platform failed or rejected a mutation.
	ErrRemoteMutation = errors.New("rules service: remote mutation failed")
	// ErrRulePersistence indicates the configuration document could not be read or written.
	ErrRulePersistence = errors.New("rules service: configuration persistence failed")
	// ErrRuleProjection marks a failed per-product projection rewrite. Projection
	// failures are reported on the result, never returned as the operation error.
	ErrRuleProjection = errors.New("rules service: projection write failed")
)
