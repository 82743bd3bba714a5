package auth

import (
	"errors"
	"fmt"
)

// Gate failures. The API maps the first three to 401 and ErrForbidden to 403.
var (
	// ErrMissingCredential indicates no bearer token was presented.
	ErrMissingCredential = errors.New("authentication credential is missing")

	// ErrInvalidCredential is the class of every malformed, forged, expired or
	// misused token and of failed logins.
	ErrInvalidCredential = errors.New("authentication credential is invalid")

	// ErrUnknownIdentity indicates a valid token names an identity that no
	// longer exists.
	ErrUnknownIdentity = errors.New("identity no longer exists")

	// ErrForbidden indicates the caller is known but may not perform the operation.
	ErrForbidden = errors.New("operation not permitted")
)

// Token errors. Each one wraps ErrInvalidCredential.
var (
	// ErrInvalidToken indicates the token format is invalid or signature doesn't match
	ErrInvalidToken = fmt.Errorf("%w: invalid authentication token", ErrInvalidCredential)

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = fmt.Errorf("%w: authentication token has expired", ErrInvalidCredential)

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf or iat in the future)
	ErrTokenNotYetValid = fmt.Errorf("%w: authentication token not yet valid", ErrInvalidCredential)

	// ErrWrongTokenType indicates an access token was used as a refresh token or vice versa
	ErrWrongTokenType = fmt.Errorf("%w: wrong token type", ErrInvalidCredential)

	// ErrMalformedHeader indicates the Authorization header is not "Bearer <token>"
	ErrMalformedHeader = fmt.Errorf("%w: invalid authorization format", ErrInvalidCredential)

	// ErrInvalidRefreshToken indicates the refresh token is invalid
	ErrInvalidRefreshToken = fmt.Errorf("%w: invalid refresh token", ErrInvalidCredential)

	// ErrExpiredRefreshToken indicates the refresh token has expired
	ErrExpiredRefreshToken = fmt.Errorf("%w: refresh token has expired", ErrInvalidCredential)
)
