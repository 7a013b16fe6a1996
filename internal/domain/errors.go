package domain

import "errors"

var (
	ErrUnauthenticated        = errors.New("authentication required")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrAlreadyClaimed         = errors.New("form id already claimed by a verified owner")
	ErrInvalidToken           = errors.New("invalid webhook token")
	ErrInvalidFormID          = errors.New("invalid form id")
	ErrFormNotFound           = errors.New("form not found")
)
