// Package model defines the core domain models used throughout the application.
package model

import (
	"path/filepath"
	"strings"
)

// ReceiptKind distinguishes image receipts from document receipts.
type ReceiptKind string

// Receipt kind constants.
const (
	ReceiptKindImage    ReceiptKind = "image"
	ReceiptKindDocument ReceiptKind = "document"
)

// InvoiceDetails holds the fields an extraction service read off a receipt.
// All values are kept as strings exactly as extracted; interpretation is the
// scorer's concern.
type InvoiceDetails struct {
	Date     string
	Amount   string
	Currency string
	Vendor   string
}

// Receipt represents one uploaded receipt file. Its Name is the identity the
// whole system keys on: no two live receipts may share a name.
type Receipt struct {
	Details    *InvoiceDetails
	Confidence *int
	Name       string
	StorageRef string
	Kind       ReceiptKind
	Size       int64
}

// KindForFile infers the receipt kind from a file name's extension.
func KindForFile(name string) ReceiptKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return ReceiptKindImage
	default:
		return ReceiptKindDocument
	}
}

// Clone returns a deep copy of the receipt.
func (r Receipt) Clone() Receipt {
	out := r
	if r.Details != nil {
		details := *r.Details
		out.Details = &details
	}
	if r.Confidence != nil {
		confidence := *r.Confidence
		out.Confidence = &confidence
	}
	return out
}
