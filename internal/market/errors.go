package market

import "errors"

var (
	ErrMarketNotFound   = errors.New("market not found")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidState     = errors.New("operation not allowed in current market state")
	ErrUnauthorized     = errors.New("caller is not authorized")
	ErrAlreadySettled   = errors.New("market already settled")
	ErrNothingToClaim   = errors.New("nothing to claim")
	ErrIndexOutOfRange  = errors.New("market index out of range")
	ErrInvalidMetadata  = errors.New("invalid project metadata")
	ErrInvalidParameter = errors.New("invalid market parameter")
	ErrJournalMismatch  = errors.New("journal does not match market state")
)
