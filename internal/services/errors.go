package services

import "errors"

// Expected business outcomes. Handlers map these to stable error codes; none
// of them is retried automatically.
var (
	ErrInvalidAmount              = errors.New("invalid amount")
	ErrInsufficientFunds          = errors.New("insufficient funds")
	ErrInsufficientFloat          = errors.New("insufficient float balance")
	ErrInsufficientCommission     = errors.New("insufficient commission balance")
	ErrInsufficientCash           = errors.New("insufficient cash received")
	ErrWalletUnavailable          = errors.New("wallet not available")
	ErrAgentUnavailable           = errors.New("agent account not available")
	ErrNotAgent                   = errors.New("not registered as an agent")
	ErrAlreadyAgent               = errors.New("already registered as an agent")
	ErrKYCRequired                = errors.New("kyc verification required")
	ErrFloatBelowMinimum          = errors.New("initial float below minimum deposit")
	ErrPackageNotFound            = errors.New("package not found")
	ErrMeterNotFound              = errors.New("meter not found")
	ErrMeterUnavailable           = errors.New("meter not available")
	ErrRecipientNotFound          = errors.New("recipient not found")
	ErrSelfTransfer               = errors.New("cannot transfer to yourself")
	ErrRecipientWalletUnavailable = errors.New("recipient wallet not available")
	ErrLimitExceeded              = errors.New("spend limit exceeded")
	ErrInvalidProductType         = errors.New("invalid product type")
	ErrMeterRequired              = errors.New("meter required for electricity purchase")
	ErrVoucherNotActivatable      = errors.New("voucher cannot be activated")
	ErrTransactionNotFound        = errors.New("transaction not found")
	ErrAlreadyProcessed           = errors.New("transaction already processed")
	ErrInvalidWithdrawMethod      = errors.New("invalid withdrawal method")
)
