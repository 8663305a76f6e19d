// Package strategy provides the built-in principal strategy used by the flash
// protocol: a vault that custodies staked principal and pays time-value
// redemptions out of the yield accrued on top of it.
package strategy

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"flashstake/native/flash"
	"flashstake/token"
)

var (
	// ErrNotFlashProtocol rejects principal movement from anyone but the
	// protocol the vault was bound to.
	ErrNotFlashProtocol = errors.New("strategy vault: caller is not the flash protocol")
	// ErrNotOwner rejects administrative calls from anyone but the owner.
	ErrNotOwner = errors.New("strategy vault: caller is not the owner")
	// ErrFTokenAlreadySet rejects a second fToken binding.
	ErrFTokenAlreadySet = errors.New("strategy vault: fToken already set")
	// ErrFTokenNotSet is returned when a burn is attempted before registration
	// completed.
	ErrFTokenNotSet = errors.New("strategy vault: fToken not set")
	// ErrMinimumOutput signals the quoted burn return fell below the caller's
	// slippage floor.
	ErrMinimumOutput = errors.New("strategy vault: output below minimum")
	// ErrArraySizeMismatch is returned by WithdrawERC20 when the token and
	// amount slices differ in length.
	ErrArraySizeMismatch = errors.New("strategy vault: arrays must be same length")
	// ErrTokenProhibited blocks sweeping the principal asset out of the vault.
	ErrTokenProhibited = errors.New("strategy vault: token cannot be withdrawn")
	// ErrInvalidAmount rejects nil or non-positive token amounts.
	ErrInvalidAmount = errors.New("strategy vault: amount must be positive")
)

// Vault is the reference strategy. Deposited principal is tracked separately
// from the vault's total principal-asset balance: anything above the deposited
// figure is yield and backs fToken redemptions.
type Vault struct {
	mu sync.Mutex

	addr     common.Address
	owner    common.Address
	protocol common.Address

	principal *token.Ledger
	ftoken    *token.Ledger

	principalDeposited *big.Int
}

// NewVault constructs a vault bound to the given protocol address. owner may
// sweep stray non-principal tokens.
func NewVault(addr, owner, protocol common.Address, principal *token.Ledger) *Vault {
	return &Vault{
		addr:               addr,
		owner:              owner,
		protocol:           protocol,
		principal:          principal,
		principalDeposited: big.NewInt(0),
	}
}

// Address returns the vault's ledger identity.
func (v *Vault) Address() common.Address { return v.addr }

// SetFToken binds the fToken ledger created during registration. One shot.
func (v *Vault) SetFToken(ftoken *token.Ledger) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ftoken != nil {
		return ErrFTokenAlreadySet
	}
	v.ftoken = ftoken
	return nil
}

// FToken returns the bound fToken ledger.
func (v *Vault) FToken() *token.Ledger {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ftoken
}

// DepositPrincipal books principal that the protocol has already transferred
// into the vault. Returns the amount actually booked.
func (v *Vault) DepositPrincipal(caller common.Address, amount *big.Int) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.protocol {
		return nil, ErrNotFlashProtocol
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	v.principalDeposited = new(big.Int).Add(v.principalDeposited, amount)
	return new(big.Int).Set(amount), nil
}

// WithdrawPrincipal releases booked principal back to the protocol.
func (v *Vault) WithdrawPrincipal(caller common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.protocol {
		return ErrNotFlashProtocol
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := v.principal.Transfer(v.addr, v.protocol, amount); err != nil {
		return err
	}
	v.principalDeposited = new(big.Int).Sub(v.principalDeposited, amount)
	return nil
}

// PrincipalBalance reports the principal currently booked in the vault.
func (v *Vault) PrincipalBalance() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.principalDeposited)
}

// YieldBalance reports the redeemable surplus: everything the vault holds in
// the principal asset beyond the booked principal.
func (v *Vault) YieldBalance() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.yieldBalanceLocked()
}

func (v *Vault) yieldBalanceLocked() *big.Int {
	total := v.principal.BalanceOf(v.addr)
	yield := new(big.Int).Sub(total, v.principalDeposited)
	if yield.Sign() < 0 {
		return big.NewInt(0)
	}
	return yield
}

// QuoteMintFToken returns the fTokens minted for staking amount over duration.
func (v *Vault) QuoteMintFToken(amount *big.Int, duration uint64) (*big.Int, error) {
	return flash.QuoteMintFToken(amount, duration)
}

// QuoteBurnFToken returns the yield paid out for burning the given fTokens at
// the current yield balance and supply.
func (v *Vault) QuoteBurnFToken(amount *big.Int) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ftoken == nil {
		return nil, ErrFTokenNotSet
	}
	return flash.QuoteBurnFToken(amount, v.yieldBalanceLocked(), v.ftoken.TotalSupply())
}

// BurnFToken burns fTokens held by the caller and pays the pro-rata yield to
// recipient. Fails when the quoted return is below minimumReturned.
func (v *Vault) BurnFToken(caller common.Address, amount, minimumReturned *big.Int, recipient common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ftoken == nil {
		return nil, ErrFTokenNotSet
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	yield, err := flash.QuoteBurnFToken(amount, v.yieldBalanceLocked(), v.ftoken.TotalSupply())
	if err != nil {
		return nil, err
	}
	if minimumReturned != nil && yield.Cmp(minimumReturned) < 0 {
		return nil, ErrMinimumOutput
	}
	if err := v.ftoken.Burn(v.addr, caller, amount); err != nil {
		return nil, err
	}
	if yield.Sign() > 0 {
		if err := v.principal.Transfer(v.addr, recipient, yield); err != nil {
			return nil, err
		}
	}
	return yield, nil
}

// WithdrawERC20 sweeps stray tokens the vault happens to hold to the owner.
// The principal asset is prohibited so yield and custody cannot be drained.
func (v *Vault) WithdrawERC20(caller common.Address, tokens []*token.Ledger, amounts []*big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.owner {
		return ErrNotOwner
	}
	if len(tokens) != len(amounts) {
		return ErrArraySizeMismatch
	}
	for i, ledger := range tokens {
		if ledger.Address() == v.principal.Address() {
			return ErrTokenProhibited
		}
		if err := ledger.Transfer(v.addr, v.owner, amounts[i]); err != nil {
			return err
		}
	}
	return nil
}
