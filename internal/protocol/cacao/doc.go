// Package cacao builds and renders CAIP-74 capability objects.
//
// FormatMessage is the single source of the EIP-4361 text both sides sign
// and verify; any change to it breaks every stored signature. ReCap
// resources ("urn:recap:<base64url json>") carry the methods an
// authenticate request asks for, and their human-readable summary is
// appended to the statement.
package cacao
