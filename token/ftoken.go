package token

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	errNotMinter             = errors.New("token ledger: caller is not an authorised minter")
	errInvalidAmount         = errors.New("token ledger: amount must be positive")
	errInsufficientBalance   = errors.New("token ledger: insufficient balance")
	errInsufficientAllowance = errors.New("token ledger: insufficient allowance")
	errLedgerNotFound        = errors.New("token ledger: unknown token address")
)

// Ledger is an in-memory fungible balance ledger. Mint and burn authority is
// explicit: a caller address must be registered as a minter. There is no
// implicit transaction sender, so every mutating method takes the caller as its
// first argument.
type Ledger struct {
	mu          sync.RWMutex
	address     common.Address
	name        string
	symbol      string
	minters     map[common.Address]struct{}
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	totalSupply *big.Int
}

// NewLedger constructs a ledger controlled by the given minter.
func NewLedger(address common.Address, name, symbol string, minter common.Address) *Ledger {
	l := &Ledger{
		address:     address,
		name:        name,
		symbol:      symbol,
		minters:     make(map[common.Address]struct{}),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		totalSupply: big.NewInt(0),
	}
	l.minters[minter] = struct{}{}
	return l
}

// Address returns the identity of this ledger inside the token registry.
func (l *Ledger) Address() common.Address { return l.address }

// Name returns the token name supplied at creation.
func (l *Ledger) Name() string { return l.name }

// Symbol returns the token symbol supplied at creation.
func (l *Ledger) Symbol() string { return l.symbol }

// AddMinter grants mint and burn authority to an address. Only an existing
// minter may extend the set.
func (l *Ledger) AddMinter(caller, minter common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.minters[caller]; !ok {
		return errNotMinter
	}
	l.minters[minter] = struct{}{}
	return nil
}

// Mint credits freshly created tokens to the recipient.
func (l *Ledger) Mint(caller, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.minters[caller]; !ok {
		return errNotMinter
	}
	l.credit(to, amount)
	l.totalSupply = new(big.Int).Add(l.totalSupply, amount)
	return nil
}

// Burn destroys tokens held by from. Minters may burn any balance; everyone
// else may only burn their own.
func (l *Ledger) Burn(caller, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != from {
		if _, ok := l.minters[caller]; !ok {
			return errNotMinter
		}
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.totalSupply = new(big.Int).Sub(l.totalSupply, amount)
	return nil
}

// Transfer moves tokens from the caller to the recipient.
func (l *Ledger) Transfer(caller, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(caller, amount); err != nil {
		return err
	}
	l.credit(to, amount)
	return nil
}

// Approve sets the allowance the spender may draw from the caller's balance.
func (l *Ledger) Approve(caller, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	allowed, ok := l.allowances[caller]
	if !ok {
		allowed = make(map[common.Address]*big.Int)
		l.allowances[caller] = allowed
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	allowed[spender] = new(big.Int).Set(amount)
}

// Allowance reports the remaining spend granted by owner to spender.
func (l *Ledger) Allowance(owner, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if allowed, ok := l.allowances[owner]; ok {
		if v, ok := allowed[spender]; ok {
			return new(big.Int).Set(v)
		}
	}
	return big.NewInt(0)
}

// TransferFrom moves tokens from the owner to the recipient, consuming the
// caller's allowance.
func (l *Ledger) TransferFrom(caller, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	allowed, ok := l.allowances[from]
	if !ok {
		return errInsufficientAllowance
	}
	remaining, ok := allowed[caller]
	if !ok || remaining.Cmp(amount) < 0 {
		return errInsufficientAllowance
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	allowed[caller] = new(big.Int).Sub(remaining, amount)
	l.credit(to, amount)
	return nil
}

// BalanceOf returns the current balance for the holder.
func (l *Ledger) BalanceOf(holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.balances[holder]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

// TotalSupply returns the outstanding token supply.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.totalSupply)
}

func (l *Ledger) credit(addr common.Address, amount *big.Int) {
	current, ok := l.balances[addr]
	if !ok {
		current = big.NewInt(0)
	}
	l.balances[addr] = new(big.Int).Add(current, amount)
}

func (l *Ledger) debit(addr common.Address, amount *big.Int) error {
	current, ok := l.balances[addr]
	if !ok || current.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	l.balances[addr] = new(big.Int).Sub(current, amount)
	return nil
}

// Factory creates and indexes ledgers by address. fToken ledgers receive
// deterministic addresses derived from their name, symbol and creation index so
// that repeated deployments of the same configuration agree on identities.
type Factory struct {
	mu      sync.RWMutex
	ledgers map[common.Address]*Ledger
	nonce   uint64
}

// NewFactory returns an empty token factory.
func NewFactory() *Factory {
	return &Factory{ledgers: make(map[common.Address]*Ledger)}
}

// Create builds a new ledger controlled by minter and registers it.
func (f *Factory) Create(name, symbol string, minter common.Address) *Ledger {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonce++
	seed := make([]byte, 0, len(name)+len(symbol)+8)
	seed = append(seed, name...)
	seed = append(seed, symbol...)
	for i := 0; i < 8; i++ {
		seed = append(seed, byte(f.nonce>>(8*i)))
	}
	addr := common.BytesToAddress(ethcrypto.Keccak256(seed)[12:])
	ledger := NewLedger(addr, name, symbol, minter)
	f.ledgers[addr] = ledger
	return ledger
}

// FaucetAddress derives the deterministic mint authority for a strategy's
// principal asset so local deployments can fund test accounts.
func FaucetAddress(strategy common.Address) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256(append([]byte("flash/faucet/"), strategy.Bytes()...))[12:])
}

// Adopt registers an externally constructed ledger (e.g. a pre-existing
// principal asset) under its own address.
func (f *Factory) Adopt(ledger *Ledger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ledgers[ledger.Address()] = ledger
}

// Get resolves a ledger by address.
func (f *Factory) Get(addr common.Address) (*Ledger, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ledger, ok := f.ledgers[addr]
	if !ok {
		return nil, errLedgerNotFound
	}
	return ledger, nil
}
