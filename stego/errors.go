package stego

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfsteg/contentstream"
	"github.com/wudi/pdfsteg/frame"
	"github.com/wudi/pdfsteg/parser"
)

// ErrCapacityExceeded is matched by every *CapacityError.
var ErrCapacityExceeded = errors.New("message exceeds carrier capacity")

// ErrVerification reports an embedding that did not read back intact.
var ErrVerification = errors.New("embedded message failed verification")

// CapacityError reports a message whose frame needs more bits than the
// document offers.
type CapacityError struct {
	Need int // bits
	Have int // bits
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("message needs %d bits but the document carries %d (short by %d)", e.Need, e.Have, e.Shortfall())
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacityExceeded }

// Shortfall returns the number of missing bits.
func (e *CapacityError) Shortfall() int { return e.Need - e.Have }

// ErrorKind is a coarse classification of codec errors.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindMalformedDocument
	KindTokenize
	KindCapacityExceeded
	KindMagicMismatch
	KindChecksumMismatch
	KindTruncatedFrame
	KindUnsupported
	KindVerification
	KindCanceled
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMalformedDocument:
		return "MalformedDocument"
	case KindTokenize:
		return "TokenizeError"
	case KindCapacityExceeded:
		return "CapacityExceeded"
	case KindMagicMismatch:
		return "MagicMismatch"
	case KindChecksumMismatch:
		return "ChecksumMismatch"
	case KindTruncatedFrame:
		return "TruncatedFrame"
	case KindUnsupported:
		return "Unsupported"
	case KindVerification:
		return "VerificationFailed"
	case KindCanceled:
		return "Canceled"
	default:
		return "Other"
	}
}

// NoMessage reports whether k means that no valid hidden message was found.
func (k ErrorKind) NoMessage() bool {
	return k == KindMagicMismatch || k == KindChecksumMismatch || k == KindTruncatedFrame
}

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	var tokErr *contentstream.TokenizeError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, parser.ErrEncrypted):
		return KindUnsupported
	case errors.Is(err, parser.ErrMalformed):
		return KindMalformedDocument
	case errors.As(err, &tokErr):
		return KindTokenize
	case errors.Is(err, ErrCapacityExceeded):
		return KindCapacityExceeded
	case errors.Is(err, frame.ErrMagicMismatch):
		return KindMagicMismatch
	case errors.Is(err, frame.ErrChecksumMismatch):
		return KindChecksumMismatch
	case errors.Is(err, frame.ErrTruncatedFrame):
		return KindTruncatedFrame
	case errors.Is(err, ErrVerification):
		return KindVerification
	default:
		return KindOther
	}
}

// Result summarises one codec operation for callers that report outcomes
// without inspecting error text.
type Result struct {
	Op     string
	OK     bool
	Kind   ErrorKind
	Err    error
	Report *Report
}

// NewResult records the outcome of op.
func NewResult(op string, report *Report, err error) Result {
	return Result{Op: op, OK: err == nil, Kind: KindOf(err), Err: err, Report: report}
}
