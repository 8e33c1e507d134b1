// Package common provides shared utilities and types used across the application.
package common

import "errors"

// Common application errors.
var (
	// Aggregate errors.
	ErrExpenseNotFound = errors.New("expense not found")
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrNoOpMove        = errors.New("receipt already in destination container")

	// Collaborator errors.
	ErrScoringUnavailable = errors.New("confidence scorer unavailable")
	ErrMatchingService    = errors.New("bulk matching service failed")
	ErrUploadRejected     = errors.New("upload rejected")
)
