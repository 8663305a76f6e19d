package flash

import "errors"

var (
	errNilState = errors.New("flash engine: state not configured")

	// Input validation.
	ErrInvalidAmount   = errors.New("flash engine: amount must be positive")
	ErrDurationTooLow  = errors.New("flash engine: minimum stake duration is 60 seconds")
	ErrDurationTooHigh = errors.New("flash engine: exceeds max stake duration")

	// Authorization.
	ErrNotOwner         = errors.New("flash engine: not owner of stake")
	ErrNotNFTOwner      = errors.New("flash engine: not owner of nft")
	ErrNFTTokenRequired = errors.New("flash engine: nft token required")
	ErrNotProtocolOwner = errors.New("flash engine: caller is not the owner")

	// State conflicts.
	ErrStakeNotFound             = errors.New("flash engine: stake non-existent")
	ErrStakeSettled              = errors.New("flash engine: stake already settled")
	ErrNFTAlreadyExists          = errors.New("flash engine: nft for stake already exists")
	ErrStrategyAlreadyRegistered = errors.New("flash engine: strategy already registered")
	ErrUnregisteredStrategy      = errors.New("flash engine: unregistered strategy")
	ErrFTokenMismatch            = errors.New("flash engine: ftoken does not match registry record")

	// Economic bounds.
	ErrMintFeeTooHigh       = errors.New("flash engine: mint fee too high")
	ErrFeeRecipientRequired = errors.New("flash engine: fee recipient required when fee is set")
	ErrInsufficientFTokens  = errors.New("flash engine: insufficient ftoken balance")
	ErrInsufficientSupply   = errors.New("flash quote: insufficient ftoken supply")
	ErrMinimumOutput        = errors.New("flash engine: yield below requested minimum")
)
