package domain

import "errors"

// классы ошибок, по которым http слой выбирает статус ответа
var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("conflict")
	ErrInternal            = errors.New("internal error")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
