package domain

// Общие доменные ошибки
var (
	ErrValidation           = validationError("invalid data")
	ErrProductNotFound      = notFoundError("product not found")
	ErrOrderNotFound        = notFoundError("order not found")
	ErrInsufficientStock    = conflictError("insufficient stock")
	ErrOrderNotCancellable  = conflictError("order not cancellable")
	ErrInvalidTransition    = conflictError("invalid status transition")
	ErrForbidden            = forbiddenError("forbidden")
	ErrOrderNumberTaken     = conflictError("order number taken")
	ErrOrderNumberExhausted = internalError("order number generation exhausted")
)

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

type validationError string

func (e validationError) Error() string { return string(e) }

type conflictError string

func (e conflictError) Error() string { return string(e) }

type forbiddenError string

func (e forbiddenError) Error() string { return string(e) }

type internalError string

func (e internalError) Error() string { return string(e) }
