package acme

import (
	"net/http"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme/entities"
)

// Error types as per RFC 8555 Section 6.7
const (
	ErrTypeAccountDoesNotExist   = "accountDoesNotExist"
	ErrTypeAlreadyRevoked        = "alreadyRevoked"
	ErrTypeBadCSR                = "badCSR"
	ErrTypeBadNonce              = "badNonce"
	ErrTypeBadPublicKey          = "badPublicKey"
	ErrTypeBadRevocationReason   = "badRevocationReason"
	ErrTypeBadSignatureAlgorithm = "badSignatureAlgorithm"
	ErrTypeIncorrectResponse     = "incorrectResponse"
	ErrTypeInvalidContact        = "invalidContact"
	ErrTypeMalformedError        = "malformed"
	ErrTypeOrderNotReady         = "orderNotReady"
	ErrTypeRateLimited           = "rateLimited"
	ErrTypeRejectedIdentifier    = "rejectedIdentifier"
	ErrTypeServerInternal        = "serverInternal"
	ErrTypeUnauthorized          = "unauthorized"
	ErrTypeUnsupportedContact    = "unsupportedContact"
	ErrTypeUnsupportedIdentifier = "unsupportedIdentifier"
	ErrTypeAccountExists         = "accountExists"
)

func AccountDoesNotExist(detail string) *entities.Error {
	return entities.NewError(ErrTypeAccountDoesNotExist, detail, http.StatusNotFound, nil)
}

func AlreadyRevoked(detail string) *entities.Error {
	return entities.NewError(ErrTypeAlreadyRevoked, detail, http.StatusBadRequest, nil)
}

func BadCSR(detail string) *entities.Error {
	return entities.NewError(ErrTypeBadCSR, detail, http.StatusBadRequest, nil)
}

func BadNonce(detail string) *entities.Error {
	return entities.NewError(ErrTypeBadNonce, detail, http.StatusBadRequest, nil)
}

func BadPublicKey(detail string) *entities.Error {
	return entities.NewError(ErrTypeBadPublicKey, detail, http.StatusBadRequest, nil)
}

func BadRevocationReason(detail string) *entities.Error {
	return entities.NewError(ErrTypeBadRevocationReason, detail, http.StatusBadRequest, nil)
}

func BadSignatureAlgorithm(detail string) *entities.Error {
	return entities.NewError(ErrTypeBadSignatureAlgorithm, detail, http.StatusBadRequest, nil)
}

// Conflict reports an illegal state transition, such as reactivating a
// deactivated account.
func Conflict(detail string) *entities.Error {
	return entities.NewError(ErrTypeMalformedError, detail, http.StatusConflict, nil)
}

func IncorrectResponse(detail string) *entities.Error {
	return entities.NewError(ErrTypeIncorrectResponse, detail, http.StatusUnauthorized, nil)
}

func InvalidContact(detail string) *entities.Error {
	return entities.NewError(ErrTypeInvalidContact, detail, http.StatusBadRequest, nil)
}

func MalformedError(detail string, subproblems []entities.SubProblem) *entities.Error {
	return entities.NewError(ErrTypeMalformedError, detail, http.StatusBadRequest, subproblems)
}

func OrderNotReady(detail string) *entities.Error {
	return entities.NewError(ErrTypeOrderNotReady, detail, http.StatusForbidden, nil)
}

func RateLimited(detail string) *entities.Error {
	return entities.NewError(ErrTypeRateLimited, detail, http.StatusTooManyRequests, nil)
}

func RejectedIdentifier(detail string) *entities.Error {
	return entities.NewError(ErrTypeRejectedIdentifier, detail, http.StatusUnauthorized, nil)
}

func ServerInternal(detail string) *entities.Error {
	return entities.NewError(ErrTypeServerInternal, detail, http.StatusInternalServerError, nil)
}

func Unauthorized(detail string) *entities.Error {
	return entities.NewError(ErrTypeUnauthorized, detail, http.StatusUnauthorized, nil)
}

func UnsupportedContact(detail string) *entities.Error {
	return entities.NewError(ErrTypeUnsupportedContact, detail, http.StatusBadRequest, nil)
}

func UnsupportedIdentifier(detail string) *entities.Error {
	return entities.NewError(ErrTypeUnsupportedIdentifier, detail, http.StatusBadRequest, nil)
}

func AccountExistsError(detail, location string) *entities.Error {
	err := entities.NewError(ErrTypeAccountExists, detail, http.StatusConflict, nil)
	err.Instance = location
	return err
}
