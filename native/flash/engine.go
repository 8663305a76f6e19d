package flash

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"flashstake/core/events"
	"flashstake/token"
)

var (
	errNilAdapter  = errors.New("flash engine: strategy adapter not configured")
	errNilRegistry = errors.New("flash engine: token registry not configured")
)

// engineState is the persistence boundary for the engine: the stake table, the
// strategy registry and the mint fee configuration. Implementations must be
// deterministic; the engine serialises all access.
type engineState interface {
	StakeGet(id uint64) (*Stake, bool, error)
	StakePut(*Stake) error
	NextStakeID() (uint64, error)
	StrategyGet(addr common.Address) (*StrategyRecord, bool, error)
	StrategyPut(*StrategyRecord) error
	NFTStake(nftID uint64) (uint64, bool, error)
	NFTMap(nftID, stakeID uint64) error
	MintFeeGet() (*MintFeeInfo, bool, error)
	MintFeePut(*MintFeeInfo) error
}

// Engine is the protocol facade: the only component with externally callable
// mutating entry points. Every entry point runs to completion under a single
// mutex, so "concurrency" reduces to keeping internal stake state committed
// before tokens or strategies are touched.
type Engine struct {
	mu       sync.Mutex
	state    engineState
	tokens   *token.Factory
	nft      *token.NFTRegistry
	adapters map[common.Address]Strategy
	emitter  events.Emitter
	nowFn    func() int64

	// addr is the protocol's own ledger identity (mint/burn authority and the
	// intermediate holder for flash stakes). owner gates fee administration.
	addr  common.Address
	owner common.Address
}

// NewEngine constructs the protocol facade. addr is the protocol's ledger
// identity, owner the administrative account for fee configuration.
func NewEngine(addr, owner common.Address, tokens *token.Factory, nft *token.NFTRegistry) *Engine {
	return &Engine{
		tokens:   tokens,
		nft:      nft,
		adapters: make(map[common.Address]Strategy),
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
		addr:     addr,
		owner:    owner,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets to the no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Address returns the protocol's own ledger identity.
func (e *Engine) Address() common.Address { return e.addr }

// Owner returns the protocol owner authorised for administrative calls.
func (e *Engine) Owner() common.Address { return e.owner }

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// RegisterStrategy binds a strategy adapter to the protocol, creates its
// fToken ledger and persists the registry entry. A strategy address registers
// exactly once.
func (e *Engine) RegisterStrategy(strategyAddr common.Address, adapter Strategy, principalAsset common.Address, fTokenName, fTokenSymbol string) (*StrategyRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	if adapter == nil {
		return nil, errNilAdapter
	}
	if e.tokens == nil {
		return nil, errNilRegistry
	}
	if _, exists, err := e.state.StrategyGet(strategyAddr); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrStrategyAlreadyRegistered
	}
	if _, err := e.tokens.Get(principalAsset); err != nil {
		return nil, err
	}

	ftoken := e.tokens.Create(fTokenName, fTokenSymbol, e.addr)
	if err := ftoken.AddMinter(e.addr, strategyAddr); err != nil {
		return nil, err
	}
	if err := adapter.SetFToken(ftoken); err != nil {
		return nil, err
	}

	record := &StrategyRecord{
		Strategy:       strategyAddr,
		PrincipalAsset: principalAsset,
		FToken:         ftoken.Address(),
		RegisteredAt:   e.now(),
	}
	if err := e.state.StrategyPut(record); err != nil {
		return nil, err
	}
	e.adapters[strategyAddr] = adapter

	e.emitter.Emit(events.FlashStrategyRegistered{
		Strategy:       strategyAddr,
		PrincipalAsset: principalAsset,
		FToken:         ftoken.Address(),
		RegisteredAt:   int64(record.RegisteredAt),
	})
	return record, nil
}

// AttachStrategy rebinds an adapter to a strategy already present in the
// registry, recreating its fToken ledger in the token factory. The factory
// derives ledger addresses deterministically, so replaying the boot-time
// creation sequence yields the identities recorded at registration; a
// divergent fToken address means the configuration changed and the attach is
// refused. Token balances are not durable, only the registry and stake table
// survive a restart.
func (e *Engine) AttachStrategy(strategyAddr common.Address, adapter Strategy, fTokenName, fTokenSymbol string) (*StrategyRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	if adapter == nil {
		return nil, errNilAdapter
	}
	if e.tokens == nil {
		return nil, errNilRegistry
	}
	record, exists, err := e.state.StrategyGet(strategyAddr)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUnregisteredStrategy
	}
	if _, err := e.tokens.Get(record.PrincipalAsset); err != nil {
		return nil, err
	}
	ftoken := e.tokens.Create(fTokenName, fTokenSymbol, e.addr)
	if ftoken.Address() != record.FToken {
		return nil, ErrFTokenMismatch
	}
	if err := ftoken.AddMinter(e.addr, strategyAddr); err != nil {
		return nil, err
	}
	if err := adapter.SetFToken(ftoken); err != nil {
		return nil, err
	}
	e.adapters[strategyAddr] = adapter
	out := *record
	return &out, nil
}

// Stake locks principal against a registered strategy for the given duration
// and mints the quoted fToken split to the recipient and the fee recipient.
// The new stake record is returned; the staker keeps the unstake rights unless
// issueNFT requests an immediate receipt NFT.
func (e *Engine) Stake(staker, strategyAddr common.Address, amount *big.Int, duration uint64, recipient common.Address, issueNFT bool) (*Stake, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stake, _, err := e.stakeLocked(staker, strategyAddr, amount, duration, recipient, issueNFT)
	if err != nil {
		return nil, err
	}
	return stake.Clone(), nil
}

func (e *Engine) stakeLocked(staker, strategyAddr common.Address, amount *big.Int, duration uint64, recipient common.Address, issueNFT bool) (*Stake, *big.Int, error) {
	if e.state == nil {
		return nil, nil, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if duration < MinStakeDuration {
		return nil, nil, ErrDurationTooLow
	}
	if duration > MaxStakeDuration {
		return nil, nil, ErrDurationTooHigh
	}
	record, exists, err := e.state.StrategyGet(strategyAddr)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, ErrUnregisteredStrategy
	}
	adapter, ok := e.adapters[strategyAddr]
	if !ok {
		return nil, nil, errNilAdapter
	}
	principal, err := e.tokens.Get(record.PrincipalAsset)
	if err != nil {
		return nil, nil, err
	}

	total, err := adapter.QuoteMintFToken(amount, duration)
	if err != nil {
		return nil, nil, err
	}
	var feeBps uint64
	feeRecipient := common.Address{}
	if info, ok, err := e.state.MintFeeGet(); err != nil {
		return nil, nil, err
	} else if ok {
		feeBps = info.FeeBps
		feeRecipient = info.Recipient
	}
	toUser, fee := SplitFee(total, feeBps)
	if recipient == (common.Address{}) {
		recipient = staker
	}

	// Move principal into the strategy before booking the stake: the booked
	// amount is whatever the adapter reports as actually deposited.
	if err := principal.TransferFrom(e.addr, staker, strategyAddr, amount); err != nil {
		return nil, nil, err
	}
	net, err := adapter.DepositPrincipal(e.addr, amount)
	if err != nil {
		return nil, nil, err
	}

	id, err := e.state.NextStakeID()
	if err != nil {
		return nil, nil, err
	}
	stake := &Stake{
		ID:                   id,
		Owner:                staker,
		Strategy:             strategyAddr,
		StartTs:              e.now(),
		Duration:             duration,
		StakedAmount:         new(big.Int).Set(net),
		FTokensToUser:        toUser,
		FTokensFee:           fee,
		Active:               true,
		TotalFTokenBurned:    big.NewInt(0),
		TotalStakedWithdrawn: big.NewInt(0),
	}

	ftoken := adapter.FToken()
	if err := ftoken.Mint(e.addr, recipient, toUser); err != nil {
		return nil, nil, err
	}
	if fee.Sign() > 0 {
		if err := ftoken.Mint(e.addr, feeRecipient, fee); err != nil {
			return nil, nil, err
		}
	}

	if issueNFT {
		nftID, err := e.nft.Mint(e.addr, staker)
		if err != nil {
			return nil, nil, err
		}
		stake.NFTID = nftID
		if err := e.state.NFTMap(nftID, id); err != nil {
			return nil, nil, err
		}
	}
	if err := e.state.StakePut(stake); err != nil {
		return nil, nil, err
	}

	e.emitter.Emit(events.FlashStaked{
		StakeID:       stake.ID,
		Staker:        staker,
		Strategy:      strategyAddr,
		Amount:        new(big.Int).Set(stake.StakedAmount),
		Duration:      duration,
		FTokensToUser: new(big.Int).Set(toUser),
		FTokensFee:    new(big.Int).Set(fee),
		NFTID:         stake.NFTID,
	})
	if stake.NFTID != 0 {
		e.emitter.Emit(events.FlashNFTIssued{StakeID: stake.ID, NFTID: stake.NFTID, Owner: staker})
	}
	return stake, toUser, nil
}

// Unstake is the unified redemption entry point: before maturity it burns
// fTokens against the stake's remaining time-value and releases the matching
// principal increment; at or after maturity it settles the remainder for free.
// A burn request above the currently required amount is silently reduced.
func (e *Engine) Unstake(caller common.Address, id uint64, useNFT bool, fTokensToBurn *big.Int) (tokensReturned, fTokensBurned *big.Int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, nil, errNilState
	}
	stake, err := e.resolveRights(caller, id, useNFT)
	if err != nil {
		return nil, nil, err
	}
	if !stake.Active {
		return nil, nil, ErrStakeSettled
	}
	adapter, ok := e.adapters[stake.Strategy]
	if !ok {
		return nil, nil, errNilAdapter
	}
	record, exists, err := e.state.StrategyGet(stake.Strategy)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, ErrUnregisteredStrategy
	}
	principal, err := e.tokens.Get(record.PrincipalAsset)
	if err != nil {
		return nil, nil, err
	}

	request := big.NewInt(0)
	if fTokensToBurn != nil && fTokensToBurn.Sign() > 0 {
		request = new(big.Int).Set(fTokensToBurn)
	}

	burnCap, userCap, matured := UnstakeQuote(stake, e.now())
	var actualBurn, release *big.Int
	settle := false
	switch {
	case matured:
		// Burning is optional at full maturity; any request collapses to zero.
		actualBurn = big.NewInt(0)
		release = stake.RemainingPrincipal()
		settle = true
	default:
		actualBurn = new(big.Int).Set(minBig(minBig(request, burnCap), userCap))
		if actualBurn.Cmp(burnCap) == 0 {
			// The full remaining time-value was paid (or had already decayed
			// to nothing): release everything left.
			release = stake.RemainingPrincipal()
			settle = true
		} else {
			release = new(big.Int).Mul(stake.StakedAmount, actualBurn)
			release.Quo(release, stake.TotalMinted())
			if remaining := stake.RemainingPrincipal(); release.Cmp(remaining) > 0 {
				release = remaining
			}
		}
	}

	if actualBurn.Sign() == 0 && release.Sign() == 0 && !settle {
		// Nothing unlocked and nothing requested; leave the stake untouched.
		return big.NewInt(0), big.NewInt(0), nil
	}

	ftoken := adapter.FToken()
	if actualBurn.Sign() > 0 && ftoken.BalanceOf(caller).Cmp(actualBurn) < 0 {
		return nil, nil, ErrInsufficientFTokens
	}

	// Commit the stake record before any token or strategy call.
	stake.TotalFTokenBurned = new(big.Int).Add(stake.TotalFTokenBurned, actualBurn)
	stake.TotalStakedWithdrawn = new(big.Int).Add(stake.TotalStakedWithdrawn, release)
	if settle {
		stake.Active = false
	}
	if err := e.state.StakePut(stake); err != nil {
		return nil, nil, err
	}

	if actualBurn.Sign() > 0 {
		if err := ftoken.Burn(e.addr, caller, actualBurn); err != nil {
			return nil, nil, err
		}
	}
	if release.Sign() > 0 {
		if err := adapter.WithdrawPrincipal(e.addr, release); err != nil {
			return nil, nil, err
		}
		if err := principal.Transfer(e.addr, caller, release); err != nil {
			return nil, nil, err
		}
	}

	e.emitter.Emit(events.FlashUnstaked{
		StakeID:        stake.ID,
		Caller:         caller,
		TokensReturned: new(big.Int).Set(release),
		FTokensBurned:  new(big.Int).Set(actualBurn),
		Settled:        settle,
	})
	return release, actualBurn, nil
}

// FlashStake is the composite flow: stake principal and immediately redeem the
// entire user share of the minted fTokens through the strategy, paying the
// upfront yield to yieldRecipient. The principal stays locked in the resulting
// stake until it is unstaked like any other.
func (e *Engine) FlashStake(caller, strategyAddr common.Address, amount *big.Int, duration uint64, minimumReceived *big.Int, yieldRecipient common.Address, issueNFT bool) (*Stake, *big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, nil, errNilState
	}
	if yieldRecipient == (common.Address{}) {
		yieldRecipient = caller
	}
	if err := e.checkFlashMinimum(strategyAddr, amount, duration, minimumReceived); err != nil {
		return nil, nil, err
	}
	// The user share is minted straight to the protocol, which burns it for
	// the instant yield payout.
	stake, toUser, err := e.stakeLocked(caller, strategyAddr, amount, duration, e.addr, issueNFT)
	if err != nil {
		return nil, nil, err
	}
	adapter := e.adapters[strategyAddr]
	yield, err := adapter.BurnFToken(e.addr, toUser, minimumReceived, yieldRecipient)
	if err != nil {
		return nil, nil, err
	}
	e.emitter.Emit(events.FlashFTokenBurned{
		Strategy:      strategyAddr,
		Caller:        caller,
		FTokensBurned: new(big.Int).Set(toUser),
		YieldReturned: new(big.Int).Set(yield),
		Recipient:     yieldRecipient,
	})
	return stake.Clone(), yield, nil
}

// BurnFToken redeems fTokens the caller holds against a strategy's accrued
// yield. Any holder can redeem, not just the staker the tokens were minted
// for. A zero recipient pays the caller.
func (e *Engine) BurnFToken(caller, strategyAddr common.Address, amount, minimumReturned *big.Int, recipient common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	adapter, ok := e.adapters[strategyAddr]
	if !ok {
		return nil, ErrUnregisteredStrategy
	}
	if recipient == (common.Address{}) {
		recipient = caller
	}
	yield, err := adapter.BurnFToken(caller, amount, minimumReturned, recipient)
	if err != nil {
		return nil, err
	}
	e.emitter.Emit(events.FlashFTokenBurned{
		Strategy:      strategyAddr,
		Caller:        caller,
		FTokensBurned: new(big.Int).Set(amount),
		YieldReturned: new(big.Int).Set(yield),
		Recipient:     recipient,
	})
	return yield, nil
}

// checkFlashMinimum rejects a flash stake before any state is touched when
// the upfront yield cannot meet the caller's floor. The quote mirrors the
// strategy's burn at post-mint supply so a passing check cannot fail later.
func (e *Engine) checkFlashMinimum(strategyAddr common.Address, amount *big.Int, duration uint64, minimumReceived *big.Int) error {
	if minimumReceived == nil || minimumReceived.Sign() <= 0 {
		return nil
	}
	adapter, ok := e.adapters[strategyAddr]
	if !ok {
		return ErrUnregisteredStrategy
	}
	total, err := adapter.QuoteMintFToken(amount, duration)
	if err != nil {
		return err
	}
	var feeBps uint64
	if info, ok, err := e.state.MintFeeGet(); err != nil {
		return err
	} else if ok {
		feeBps = info.FeeBps
	}
	toUser, _ := SplitFee(total, feeBps)
	supply := big.NewInt(0)
	if ft := adapter.FToken(); ft != nil {
		supply = ft.TotalSupply()
	}
	expected, err := QuoteBurnFToken(toUser, adapter.YieldBalance(), new(big.Int).Add(supply, total))
	if err != nil {
		return err
	}
	if expected.Cmp(minimumReceived) < 0 {
		return ErrMinimumOutput
	}
	return nil
}

// IssueNFT mints the receipt NFT for a stake, transferring the unstake rights
// to whoever holds it. Callable once per stake by the current rights holder.
func (e *Engine) IssueNFT(caller common.Address, stakeID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return 0, errNilState
	}
	stake, found, err := e.state.StakeGet(stakeID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrStakeNotFound
	}
	if stake.NFTID != 0 {
		return 0, ErrNFTAlreadyExists
	}
	if stake.Owner != caller {
		return 0, ErrNotOwner
	}
	nftID, err := e.nft.Mint(e.addr, caller)
	if err != nil {
		return 0, err
	}
	stake.NFTID = nftID
	if err := e.state.NFTMap(nftID, stakeID); err != nil {
		return 0, err
	}
	if err := e.state.StakePut(stake); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.FlashNFTIssued{StakeID: stakeID, NFTID: nftID, Owner: caller})
	return nftID, nil
}

// GetStakeInfo resolves a stake by id or, when useNFT is set, by the id of its
// receipt NFT. The returned record is a copy the caller may mutate freely.
func (e *Engine) GetStakeInfo(id uint64, useNFT bool) (*Stake, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	stake, err := e.lookupStake(id, useNFT)
	if err != nil {
		return nil, err
	}
	return stake.Clone(), nil
}

// SetMintFeeInfo configures the fee recipient and basis-point cut applied to
// every mint. Owner-only; the rate is capped.
func (e *Engine) SetMintFeeInfo(caller, recipient common.Address, feeBps uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return errNilState
	}
	if caller != e.owner {
		return ErrNotProtocolOwner
	}
	if feeBps > MaxMintFeeBps {
		return ErrMintFeeTooHigh
	}
	if feeBps > 0 && recipient == (common.Address{}) {
		return ErrFeeRecipientRequired
	}
	return e.state.MintFeePut(&MintFeeInfo{Recipient: recipient, FeeBps: feeBps})
}

// MintFeeInfo returns the currently configured fee split, or a zero value when
// none has been set.
func (e *Engine) MintFeeInfo() (MintFeeInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return MintFeeInfo{}, errNilState
	}
	info, ok, err := e.state.MintFeeGet()
	if err != nil {
		return MintFeeInfo{}, err
	}
	if !ok {
		return MintFeeInfo{}, nil
	}
	return *info, nil
}

// QuoteMint returns the fTokens a stake of amount over duration would mint
// through the given strategy, before any fee split.
func (e *Engine) QuoteMint(strategyAddr common.Address, amount *big.Int, duration uint64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	adapter, ok := e.adapters[strategyAddr]
	if !ok {
		return nil, ErrUnregisteredStrategy
	}
	return adapter.QuoteMintFToken(amount, duration)
}

// QuoteBurn returns the yield currently paid for burning amount fTokens of the
// given strategy.
func (e *Engine) QuoteBurn(strategyAddr common.Address, amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	adapter, ok := e.adapters[strategyAddr]
	if !ok {
		return nil, ErrUnregisteredStrategy
	}
	return adapter.QuoteBurnFToken(amount)
}

// StrategyInfo returns the registry entry for a strategy address.
func (e *Engine) StrategyInfo(strategyAddr common.Address) (*StrategyRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	record, exists, err := e.state.StrategyGet(strategyAddr)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUnregisteredStrategy
	}
	out := *record
	return &out, nil
}

func (e *Engine) lookupStake(id uint64, useNFT bool) (*Stake, error) {
	stakeID := id
	if useNFT {
		mapped, found, err := e.state.NFTStake(id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrStakeNotFound
		}
		stakeID = mapped
	}
	stake, found, err := e.state.StakeGet(stakeID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrStakeNotFound
	}
	return stake, nil
}

// resolveRights returns the stake when caller currently holds the unstake
// rights: the stored owner while no NFT exists, or the NFT holder afterwards.
// Once an NFT has been issued the plain stake-id path is rejected so the two
// authorization paths are never simultaneously valid.
func (e *Engine) resolveRights(caller common.Address, id uint64, useNFT bool) (*Stake, error) {
	stake, err := e.lookupStake(id, useNFT)
	if err != nil {
		return nil, err
	}
	if useNFT {
		holder, err := e.nft.OwnerOf(stake.NFTID)
		if err != nil {
			return nil, err
		}
		if holder != caller {
			return nil, ErrNotNFTOwner
		}
		return stake, nil
	}
	if stake.NFTID != 0 {
		return nil, ErrNFTTokenRequired
	}
	if stake.Owner != caller {
		return nil, ErrNotOwner
	}
	return stake, nil
}
