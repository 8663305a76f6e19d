package flash

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"flashstake/token"
)

const (
	// MinStakeDuration is the shortest lock the quoting curve is defined on.
	MinStakeDuration uint64 = 60
	// MaxStakeDuration caps locks at 720 days.
	MaxStakeDuration uint64 = 63072000
	// MaxMintFeeBps bounds the protocol mint fee at 20%.
	MaxMintFeeBps uint64 = 2000
)

// Stake is the protocol-level record of a single principal lock. Records are
// append-only: they are never deleted and Active flips to false exactly once,
// on full settlement.
type Stake struct {
	// ID is monotonic and 1-based; 0 is a sentinel for "no stake".
	ID       uint64
	Owner    common.Address
	Strategy common.Address
	StartTs  uint64
	Duration uint64
	// StakedAmount is the principal locked at creation; immutable.
	StakedAmount *big.Int
	// FTokensToUser and FTokensFee split the total minted quote between the
	// staker and the protocol fee recipient; immutable once minted.
	FTokensToUser *big.Int
	FTokensFee    *big.Int
	Active        bool
	// NFTID is 0 until a receipt NFT is issued. After issuance the NFT holder
	// owns the unstake rights and the direct-owner path is rejected.
	NFTID uint64
	// Running totals feeding the next unlockable increment. Monotonically
	// non-decreasing while the stake is active.
	TotalFTokenBurned    *big.Int
	TotalStakedWithdrawn *big.Int
}

// TotalMinted returns the unsplit mint quote for this stake.
func (s *Stake) TotalMinted() *big.Int {
	return new(big.Int).Add(s.FTokensToUser, s.FTokensFee)
}

// EndTs returns the maturity timestamp.
func (s *Stake) EndTs() uint64 {
	return s.StartTs + s.Duration
}

// Matured reports whether the stake duration has fully elapsed at now.
func (s *Stake) Matured(now uint64) bool {
	return now >= s.EndTs()
}

// RemainingPrincipal returns the principal not yet withdrawn.
func (s *Stake) RemainingPrincipal() *big.Int {
	return new(big.Int).Sub(s.StakedAmount, s.TotalStakedWithdrawn)
}

// Clone returns a deep copy to avoid callers mutating shared pointers.
func (s *Stake) Clone() *Stake {
	if s == nil {
		return nil
	}
	out := *s
	out.StakedAmount = cloneAmount(s.StakedAmount)
	out.FTokensToUser = cloneAmount(s.FTokensToUser)
	out.FTokensFee = cloneAmount(s.FTokensFee)
	out.TotalFTokenBurned = cloneAmount(s.TotalFTokenBurned)
	out.TotalStakedWithdrawn = cloneAmount(s.TotalStakedWithdrawn)
	return &out
}

func (s *Stake) normalize() {
	if s.StakedAmount == nil {
		s.StakedAmount = big.NewInt(0)
	}
	if s.FTokensToUser == nil {
		s.FTokensToUser = big.NewInt(0)
	}
	if s.FTokensFee == nil {
		s.FTokensFee = big.NewInt(0)
	}
	if s.TotalFTokenBurned == nil {
		s.TotalFTokenBurned = big.NewInt(0)
	}
	if s.TotalStakedWithdrawn == nil {
		s.TotalStakedWithdrawn = big.NewInt(0)
	}
}

// StrategyRecord is the immutable registry entry for a strategy. A strategy
// registers exactly once; its principal asset and fToken identity never change.
type StrategyRecord struct {
	Strategy       common.Address
	PrincipalAsset common.Address
	FToken         common.Address
	RegisteredAt   uint64
}

// MintFeeInfo carries the owner-configured fee split applied at mint time.
type MintFeeInfo struct {
	Recipient common.Address
	FeeBps    uint64
}

// Strategy is the three-operation contract the engine requires from a yield
// source wrapper. Adapters own exactly one fToken ledger and report principal
// and yield balances independently.
type Strategy interface {
	// SetFToken binds the strategy to its fToken ledger. Callable once.
	SetFToken(ledger *token.Ledger) error
	// FToken returns the bound ledger, or nil before registration.
	FToken() *token.Ledger

	// DepositPrincipal books principal that the protocol has transferred to
	// the strategy and returns the amount actually deposited (fee-on-deposit
	// venues may report a lower net).
	DepositPrincipal(caller common.Address, amount *big.Int) (*big.Int, error)
	// WithdrawPrincipal releases booked principal back to the protocol.
	WithdrawPrincipal(caller common.Address, amount *big.Int) error
	PrincipalBalance() *big.Int
	YieldBalance() *big.Int

	QuoteMintFToken(amount *big.Int, duration uint64) (*big.Int, error)
	QuoteBurnFToken(amount *big.Int) (*big.Int, error)
	// BurnFToken removes the caller's fTokens from circulation and pays out
	// the proportional yield to recipient, enforcing the minimumReturned
	// slippage floor.
	BurnFToken(caller common.Address, amount, minimumReturned *big.Int, recipient common.Address) (*big.Int, error)
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
