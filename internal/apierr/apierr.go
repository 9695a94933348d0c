// Package apierr is the error taxonomy from spec.md §7, modeled on the
// teacher's *v2APIError (internal/tosapi/api_v2.go): a small typed error
// carrying a stable machine-readable code, a human message, and optional
// structured details, mapped to an HTTP status at the API boundary.
package apierr

import "net/http"

// Kind is one of the rows in spec.md §7's taxonomy table.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindNotFound       Kind = "not-found"
	KindConflict       Kind = "conflict"
	KindCrypto         Kind = "crypto"
	KindMining         Kind = "mining"
	KindBlockchain     Kind = "blockchain"
	KindDatabase       Kind = "database"
	KindInternal       Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindValidation:     http.StatusBadRequest,
	KindAuthentication: http.StatusUnauthorized,
	KindNotFound:       http.StatusNotFound,
	KindConflict:       http.StatusConflict,
	KindCrypto:         http.StatusBadRequest,
	KindMining:         http.StatusRequestTimeout,
	KindBlockchain:     http.StatusBadRequest,
	KindDatabase:       http.StatusInternalServerError,
	KindInternal:       http.StatusInternalServerError,
}

// Error is the error type returned by every core-package operation that can
// fail in a client-visible way. Code is a short machine-readable token such
// as "creator-missing", "pow-failed", or "tip-moved" (spec §4.2/§7).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string { return e.Message }

// Status returns the HTTP status code for this error's Kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func WithDetails(kind Kind, code, message string, details map[string]interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Details: details}
}

// Convenience constructors for the codes spec §4.2/§7 name explicitly.

func CreatorMissing() *Error {
	return New(KindNotFound, "creator-missing", "creator not found or inactive")
}

func SignatureInvalid() *Error {
	return New(KindCrypto, "signature-invalid", "signature does not verify under the creator's public key")
}

func PowFailed() *Error {
	return New(KindBlockchain, "pow-failed", "block hash does not satisfy the required difficulty")
}

func HashMismatch() *Error {
	return New(KindCrypto, "hash-mismatch", "recomputed hash does not match submitted block_hash")
}

func ShapeInvalid(reason string) *Error {
	return WithDetails(KindValidation, "shape-invalid", "payload shape is invalid", map[string]interface{}{"reason": reason})
}

func TipMoved() *Error {
	return New(KindBlockchain, "tip-moved", "chain tip advanced since prepare-mining; re-prepare and restart proof-of-work")
}

func GenesisViolation(reason string) *Error {
	return WithDetails(KindBlockchain, "genesis-violation", "genesis block shape is invalid", map[string]interface{}{"reason": reason})
}

func Database(err error) *Error {
	return WithDetails(KindDatabase, "database-error", "database operation failed", map[string]interface{}{"error": err.Error()})
}

func Internal(err error) *Error {
	return WithDetails(KindInternal, "internal-error", "an unexpected error occurred", map[string]interface{}{"error": err.Error()})
}
