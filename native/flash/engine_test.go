package flash_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"flashstake/core/events"
	"flashstake/native/flash"
	"flashstake/native/strategy"
	"flashstake/storage"
	"flashstake/token"
)

const yearSeconds = 31536000

var (
	protocolAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	ownerAddr    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	faucetAddr   = common.HexToAddress("0x0000000000000000000000000000000000000002")
	stakerAddr   = common.HexToAddress("0x0000000000000000000000000000000000000003")
	otherAddr    = common.HexToAddress("0x0000000000000000000000000000000000000004")
	feeAddr      = common.HexToAddress("0x0000000000000000000000000000000000000005")
	vaultAddr    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *captureEmitter) last() events.Event {
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

type testEnv struct {
	engine    *flash.Engine
	tokens    *token.Factory
	principal *token.Ledger
	vault     *strategy.Vault
	nfts      *token.NFTRegistry
	emitter   *captureEmitter
	now       int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		tokens:  token.NewFactory(),
		nfts:    token.NewNFTRegistry(protocolAddr),
		emitter: &captureEmitter{},
		now:     1_700_000_000,
	}
	env.principal = env.tokens.Create("Test Dai", "DAI", faucetAddr)
	env.engine = flash.NewEngine(protocolAddr, ownerAddr, env.tokens, env.nfts)
	env.engine.SetState(flash.NewStoreLedger(storage.NewMemDB()))
	env.engine.SetEmitter(env.emitter)
	env.engine.SetNowFunc(func() int64 { return env.now })

	env.vault = strategy.NewVault(vaultAddr, ownerAddr, protocolAddr, env.principal)
	if _, err := env.engine.RegisterStrategy(vaultAddr, env.vault, env.principal.Address(), "Future Dai", "fDAI"); err != nil {
		t.Fatalf("register strategy: %v", err)
	}
	return env
}

func (env *testEnv) fund(t *testing.T, holder common.Address, amount *big.Int) {
	t.Helper()
	if err := env.principal.Mint(faucetAddr, holder, amount); err != nil {
		t.Fatalf("fund %s: %v", holder.Hex(), err)
	}
	env.principal.Approve(holder, protocolAddr, amount)
}

func (env *testEnv) fToken(t *testing.T) *token.Ledger {
	t.Helper()
	ledger := env.vault.FToken()
	if ledger == nil {
		t.Fatal("fToken not bound")
	}
	return ledger
}

func (env *testEnv) advance(percent int, duration uint64) {
	env.now += int64(duration) / 100 * int64(percent)
}

func ether(t *testing.T, tokens string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(tokens, 10)
	if !ok {
		t.Fatalf("invalid amount %q", tokens)
	}
	return new(big.Int).Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestStakeMintsQuotedFTokens(t *testing.T) {
	env := newTestEnv(t)
	amount := ether(t, "1000")
	env.fund(t, stakerAddr, amount)

	stake, err := env.engine.Stake(stakerAddr, vaultAddr, amount, yearSeconds, common.Address{}, false)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	wantMint, _ := new(big.Int).SetString("1000000000512000000000", 10)
	if stake.FTokensToUser.Cmp(wantMint) != 0 {
		t.Fatalf("fTokensToUser = %s, want %s", stake.FTokensToUser, wantMint)
	}
	if stake.FTokensFee.Sign() != 0 {
		t.Fatalf("unexpected fee %s", stake.FTokensFee)
	}
	if stake.ID != 1 || !stake.Active || stake.NFTID != 0 {
		t.Fatalf("unexpected stake record %+v", stake)
	}
	if got := env.fToken(t).BalanceOf(stakerAddr); got.Cmp(wantMint) != 0 {
		t.Fatalf("staker fToken balance = %s, want %s", got, wantMint)
	}
	if got := env.principal.BalanceOf(vaultAddr); got.Cmp(amount) != 0 {
		t.Fatalf("vault principal = %s, want %s", got, amount)
	}
	if evt, ok := env.emitter.last().(events.FlashStaked); !ok {
		t.Fatalf("last event = %T, want FlashStaked", env.emitter.last())
	} else if evt.StakeID != 1 {
		t.Fatalf("event stake id = %d", evt.StakeID)
	}
}

func TestStakeValidation(t *testing.T) {
	env := newTestEnv(t)
	amount := ether(t, "10")
	env.fund(t, stakerAddr, amount)

	if _, err := env.engine.Stake(stakerAddr, vaultAddr, big.NewInt(0), yearSeconds, common.Address{}, false); !errors.Is(err, flash.ErrInvalidAmount) {
		t.Fatalf("zero amount: %v", err)
	}
	if _, err := env.engine.Stake(stakerAddr, vaultAddr, amount, 59, common.Address{}, false); !errors.Is(err, flash.ErrDurationTooLow) {
		t.Fatalf("short duration: %v", err)
	}
	if _, err := env.engine.Stake(stakerAddr, vaultAddr, amount, 63072001, common.Address{}, false); !errors.Is(err, flash.ErrDurationTooHigh) {
		t.Fatalf("long duration: %v", err)
	}
	if _, err := env.engine.Stake(stakerAddr, otherAddr, amount, yearSeconds, common.Address{}, false); !errors.Is(err, flash.ErrUnregisteredStrategy) {
		t.Fatalf("unregistered strategy: %v", err)
	}
}

func TestStakeAppliesMintFee(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetMintFeeInfo(ownerAddr, feeAddr, 2000); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	amount := ether(t, "1000")
	env.fund(t, stakerAddr, amount)

	stake, err := env.engine.Stake(stakerAddr, vaultAddr, amount, yearSeconds, common.Address{}, false)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	wantUser, _ := new(big.Int).SetString("800000000409600000000", 10)
	wantFee, _ := new(big.Int).SetString("200000000102400000000", 10)
	if stake.FTokensToUser.Cmp(wantUser) != 0 {
		t.Fatalf("fTokensToUser = %s, want %s", stake.FTokensToUser, wantUser)
	}
	if stake.FTokensFee.Cmp(wantFee) != 0 {
		t.Fatalf("fTokensFee = %s, want %s", stake.FTokensFee, wantFee)
	}
	if got := env.fToken(t).BalanceOf(feeAddr); got.Cmp(wantFee) != 0 {
		t.Fatalf("fee recipient balance = %s, want %s", got, wantFee)
	}
}

func TestUnstakeAtMaturityBurnsNothing(t *testing.T) {
	env := newTestEnv(t)
	amount := ether(t, "1000")
	env.fund(t, stakerAddr, amount)
	stake, err := env.engine.Stake(stakerAddr, vaultAddr, amount, yearSeconds, common.Address{}, false)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}

	env.advance(100, yearSeconds)
	returned, burned, err := env.engine.Unstake(stakerAddr, stake.ID, false, ether(t, "500"))
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if returned.Cmp(amount) != 0 {
		t.Fatalf("returned = %s, want %s", returned, amount)
	}
	if burned.Sign() != 0 {
		t.Fatalf("burned = %s, want 0 at maturity", burned)
	}
	if got := env.principal.BalanceOf(stakerAddr); got.Cmp(amount) != 0 {
		t.Fatalf("staker principal = %s, want %s", got, amount)
	}

	info, err := env.engine.GetStakeInfo(stake.ID, false)
	if err != nil {
		t.Fatalf("get stake: %v", err)
	}
	if info.Active {
		t.Fatal("stake should be settled")
	}
	if _, _, err := env.engine.Unstake(stakerAddr, stake.ID, false, nil); !errors.Is(err, flash.ErrStakeSettled) {
		t.Fatalf("second unstake: %v", err)
	}
}

func TestUnstakePartialThenSettle(t *testing.T) {
	env := newTestEnv(t)
	amount := ether(t, "1000")
	env.fund(t, stakerAddr, amount)
	stake, err := env.engine.Stake(stakerAddr, vaultAddr, amount, yearSeconds, common.Address{}, false)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}

	// 60% elapsed: burn a tenth of the mint, release a tenth of the principal.
	env.advance(60, yearSeconds)
	burnRequest, _ := new(big.Int).SetString("100000000051200000000", 10)
	returned, burned, err := env.engine.Unstake(stakerAddr, stake.ID, false, burnRequest)
	if err != nil {
		t.Fatalf("partial unstake: %v", err)
	}
	if returned.Cmp(ether(t, "100")) != 0 {
		t.Fatalf("returned = %s, want 100e18", returned)
	}
	if burned.Cmp(burnRequest) != 0 {
		t.Fatalf("burned = %s, want %s", burned, burnRequest)
	}
	info, err := env.engine.GetStakeInfo(stake.ID, false)
	if err != nil {
		t.Fatalf("get stake: %v", err)
	}
	if !info.Active {
		t.Fatal("stake should still be active")
	}

	// 70% elapsed: the remaining requirement is exactly 30% of the mint minus
	// what was already burned; paying it settles the stake in full.
	env.advance(10, yearSeconds)
	remainingRequirement, _ := new(big.Int).SetString("200000000102400000000", 10)
	returned, burned, err = env.engine.Unstake(stakerAddr, stake.ID, false, remainingRequirement)
	if err != nil {
		t.Fatalf("settling unstake: %v", err)
	}
	if burned.Cmp(remainingRequirement) != 0 {
		t.Fatalf("burned = %s, want %s", burned, remainingRequirement)
	}
	if returned.Cmp(ether(t, "900")) != 0 {
		t.Fatalf("returned = %s, want 900e18", returned)
	}
	info, err = env.engine.GetStakeInfo(stake.ID, false)
	if err != nil {
		t.Fatalf("get stake: %v", err)
	}
	if info.Active {
		t.Fatal("stake should be settled after paying the full requirement")
	}
	if got := env.principal.BalanceOf(stakerAddr); got.Cmp(amount) != 0 {
		t.Fatalf("staker principal = %s, want full %s back", got, amount)
	}
}

func TestUnstakeOverRequestIsClamped(t *testing.T) {
	env := newTestEnv(t)
	amount := ether(t, "1000")
	env.fund(t, stakerAddr, amount)
	stake, err := env.engine.Stake(stakerAddr, vaultAddr, amount, yearSeconds, common.Address{}, false)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}

	env.advance(70, yearSeconds)
	returned, burned, err := env.engine.Unstake(stakerAddr, stake.ID, false, ether(t, "301"))
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	wantBurn, _ := new(big.Int).SetString("300000000153600000000", 10)
	if burned.Cmp(wantBurn) != 0 {
		t.Fatalf("burned = %s, want clamp to %s", burned, wantBurn)
	}
	if returned.Cmp(amount) != 0 {
		t.Fatalf("returned = %s, want full principal on meeting the requirement", returned)
	}
}

func TestUnstakeZeroRequestLeavesStakeUntouched(t *testing.T) {
	env := newTestEnv(t)
	amount := ether(t, "1000")
	env.fund(t, stakerAddr, amount)
	stake, err := env.engine.Stake(stakerAddr, vaultAddr, amount, yearSeconds, common.Address{}, false)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}

	env.advance(50, yearSeconds)
	returned, burned, err := env.engine.Unstake(stakerAddr, stake.ID, false, nil)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if returned.Sign() != 0 || burned.Sign() != 0 {
		t.Fatalf("zero request moved value: returned %s burned %s", returned, burned)
	}
	info, err := env.engine.GetStakeInfo(stake.ID, false)
	if err != nil {
		t.Fatalf("get stake: %v", err)
	}
	if !info.Active || info.TotalFTokenBurned.Sign() != 0 {
		t.Fatalf("stake mutated by zero request: %+v", info)
	}
}

func TestUnstakeInsufficientFTokens(t *testing.T) {
	env := newTestEnv(t)
	amount := ether(t, "1000")
	env.fund(t, stakerAddr, amount)
	stake, err := env.engine.Stake(stakerAddr, vaultAddr, amount, yearSeconds, common.Address{}, false)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	// Move the fTokens away so the burn cannot be paid.
	ftoken := env.fToken(t)
	if err := ftoken.Transfer(stakerAddr, otherAddr, ftoken.BalanceOf(stakerAddr)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	env.advance(50, yearSeconds)
	if _, _, err := env.engine.Unstake(stakerAddr, stake.ID, false, ether(t, "1")); !errors.Is(err, flash.ErrInsufficientFTokens) {
		t.Fatalf("unstake without fTokens: %v", err)
	}
}

func TestNFTTransfersUnstakeRights(t *testing.T) {
	env := newTestEnv(t)
	amount := ether(t, "1000")
	env.fund(t, stakerAddr, amount)
	stake, err := env.engine.Stake(stakerAddr, vaultAddr, amount, yearSeconds, common.Address{}, true)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	if stake.NFTID == 0 {
		t.Fatal("expected an NFT to be issued at stake time")
	}

	env.advance(100, yearSeconds)

	// Once the NFT exists the plain stake-id path is closed, even for the
	// original staker.
	if _, _, err := env.engine.Unstake(stakerAddr, stake.ID, false, nil); !errors.Is(err, flash.ErrNFTTokenRequired) {
		t.Fatalf("direct unstake with NFT outstanding: %v", err)
	}
	if _, _, err := env.engine.Unstake(otherAddr, stake.NFTID, true, nil); !errors.Is(err, flash.ErrNotNFTOwner) {
		t.Fatalf("unstake by non-holder: %v", err)
	}

	if err := env.nfts.Transfer(stakerAddr, otherAddr, stake.NFTID); err != nil {
		t.Fatalf("nft transfer: %v", err)
	}
	returned, _, err := env.engine.Unstake(otherAddr, stake.NFTID, true, nil)
	if err != nil {
		t.Fatalf("unstake by holder: %v", err)
	}
	if returned.Cmp(amount) != 0 {
		t.Fatalf("returned = %s, want %s", returned, amount)
	}
	if got := env.principal.BalanceOf(otherAddr); got.Cmp(amount) != 0 {
		t.Fatalf("principal went to %s, want NFT holder", got)
	}
}

func TestIssueNFTOnce(t *testing.T) {
	env := newTestEnv(t)
	amount := ether(t, "10")
	env.fund(t, stakerAddr, amount)
	stake, err := env.engine.Stake(stakerAddr, vaultAddr, amount, yearSeconds, common.Address{}, false)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}

	if _, err := env.engine.IssueNFT(otherAddr, stake.ID); !errors.Is(err, flash.ErrNotOwner) {
		t.Fatalf("issue by non-owner: %v", err)
	}
	nftID, err := env.engine.IssueNFT(stakerAddr, stake.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	holder, err := env.nfts.OwnerOf(nftID)
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if holder != stakerAddr {
		t.Fatalf("nft holder = %s", holder.Hex())
	}
	if _, err := env.engine.IssueNFT(stakerAddr, stake.ID); !errors.Is(err, flash.ErrNFTAlreadyExists) {
		t.Fatalf("second issue: %v", err)
	}

	info, err := env.engine.GetStakeInfo(nftID, true)
	if err != nil {
		t.Fatalf("get stake by nft: %v", err)
	}
	if info.ID != stake.ID {
		t.Fatalf("nft lookup resolved stake %d, want %d", info.ID, stake.ID)
	}
}

func TestSetMintFeeInfoGuards(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetMintFeeInfo(otherAddr, feeAddr, 100); !errors.Is(err, flash.ErrNotProtocolOwner) {
		t.Fatalf("non-owner: %v", err)
	}
	if err := env.engine.SetMintFeeInfo(ownerAddr, feeAddr, 2001); !errors.Is(err, flash.ErrMintFeeTooHigh) {
		t.Fatalf("over cap: %v", err)
	}
	if err := env.engine.SetMintFeeInfo(ownerAddr, common.Address{}, 100); !errors.Is(err, flash.ErrFeeRecipientRequired) {
		t.Fatalf("zero recipient with fee: %v", err)
	}
	if err := env.engine.SetMintFeeInfo(ownerAddr, common.Address{}, 0); err != nil {
		t.Fatalf("clearing fee: %v", err)
	}
	if err := env.engine.SetMintFeeInfo(ownerAddr, feeAddr, 2000); err != nil {
		t.Fatalf("at cap: %v", err)
	}
	info, err := env.engine.MintFeeInfo()
	if err != nil {
		t.Fatalf("fee info: %v", err)
	}
	if info.FeeBps != 2000 || info.Recipient != feeAddr {
		t.Fatalf("fee info = %+v", info)
	}
}

func TestRegisterStrategyOnce(t *testing.T) {
	env := newTestEnv(t)
	vault := strategy.NewVault(vaultAddr, ownerAddr, protocolAddr, env.principal)
	if _, err := env.engine.RegisterStrategy(vaultAddr, vault, env.principal.Address(), "Future Dai", "fDAI"); !errors.Is(err, flash.ErrStrategyAlreadyRegistered) {
		t.Fatalf("duplicate registration: %v", err)
	}
}

func TestAttachStrategyAfterRestart(t *testing.T) {
	db := storage.NewMemDB()
	amount := ether(t, "1000")
	start := int64(1_700_000_000)

	tokens1 := token.NewFactory()
	principal1 := tokens1.Create("Test Dai", "DAI", faucetAddr)
	engine1 := flash.NewEngine(protocolAddr, ownerAddr, tokens1, token.NewNFTRegistry(protocolAddr))
	engine1.SetState(flash.NewStoreLedger(db))
	engine1.SetNowFunc(func() int64 { return start })
	vault1 := strategy.NewVault(vaultAddr, ownerAddr, protocolAddr, principal1)
	if _, err := engine1.RegisterStrategy(vaultAddr, vault1, principal1.Address(), "Future Dai", "fDAI"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := principal1.Mint(faucetAddr, stakerAddr, amount); err != nil {
		t.Fatalf("fund: %v", err)
	}
	principal1.Approve(stakerAddr, protocolAddr, amount)
	stake, err := engine1.Stake(stakerAddr, vaultAddr, amount, yearSeconds, common.Address{}, false)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}

	// Second boot over the same database with a fresh factory. Replaying the
	// ledger creation order reproduces the recorded token addresses.
	tokens2 := token.NewFactory()
	principal2 := tokens2.Create("Test Dai", "DAI", faucetAddr)
	engine2 := flash.NewEngine(protocolAddr, ownerAddr, tokens2, token.NewNFTRegistry(protocolAddr))
	engine2.SetState(flash.NewStoreLedger(db))
	engine2.SetNowFunc(func() int64 { return start + yearSeconds + 1 })
	vault2 := strategy.NewVault(vaultAddr, ownerAddr, protocolAddr, principal2)

	if _, err := engine2.RegisterStrategy(vaultAddr, vault2, principal2.Address(), "Future Dai", "fDAI"); !errors.Is(err, flash.ErrStrategyAlreadyRegistered) {
		t.Fatalf("re-register: %v", err)
	}
	if _, _, err := engine2.Unstake(stakerAddr, stake.ID, false, nil); err == nil {
		t.Fatal("unstake succeeded without a bound adapter")
	}

	record, err := engine2.AttachStrategy(vaultAddr, vault2, "Future Dai", "fDAI")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if ftoken := vault2.FToken(); ftoken == nil || ftoken.Address() != record.FToken {
		t.Fatalf("vault fToken binding does not match record %s", record.FToken.Hex())
	}

	// Token balances are not durable, so rebuild the vault's custody before
	// releasing the matured stake.
	if err := principal2.Mint(faucetAddr, vaultAddr, amount); err != nil {
		t.Fatalf("restore custody: %v", err)
	}
	if _, err := vault2.DepositPrincipal(protocolAddr, amount); err != nil {
		t.Fatalf("book custody: %v", err)
	}

	returned, burned, err := engine2.Unstake(stakerAddr, stake.ID, false, nil)
	if err != nil {
		t.Fatalf("unstake after restart: %v", err)
	}
	if returned.Cmp(amount) != 0 || burned.Sign() != 0 {
		t.Fatalf("returned %s burned %s, want full principal and no burn", returned, burned)
	}
	if got := principal2.BalanceOf(stakerAddr); got.Cmp(amount) != 0 {
		t.Fatalf("staker principal = %s, want %s", got, amount)
	}

	if _, err := engine2.AttachStrategy(otherAddr, vault2, "Future Dai", "fDAI"); !errors.Is(err, flash.ErrUnregisteredStrategy) {
		t.Fatalf("attach unknown strategy: %v", err)
	}
	// A fresh vault attached now would create its fToken at a later nonce, so
	// the identity check must refuse the rebind.
	vault3 := strategy.NewVault(vaultAddr, ownerAddr, protocolAddr, principal2)
	if _, err := engine2.AttachStrategy(vaultAddr, vault3, "Future Dai", "fDAI"); !errors.Is(err, flash.ErrFTokenMismatch) {
		t.Fatalf("attach with diverged ftoken identity: %v", err)
	}
}

func TestBurnFTokenByAnyHolder(t *testing.T) {
	env := newTestEnv(t)
	amount := ether(t, "1000")
	env.fund(t, stakerAddr, amount)
	stake, err := env.engine.Stake(stakerAddr, vaultAddr, amount, yearSeconds, common.Address{}, false)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	ftoken := env.fToken(t)
	if err := ftoken.Transfer(stakerAddr, otherAddr, stake.FTokensToUser); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	yield := ether(t, "50")
	if err := env.principal.Mint(faucetAddr, vaultAddr, yield); err != nil {
		t.Fatalf("seed yield: %v", err)
	}

	paid, err := env.engine.BurnFToken(otherAddr, vaultAddr, stake.FTokensToUser, nil, common.Address{})
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if paid.Cmp(yield) != 0 {
		t.Fatalf("yield paid = %s, want %s", paid, yield)
	}
	if got := env.principal.BalanceOf(otherAddr); got.Cmp(yield) != 0 {
		t.Fatalf("holder principal = %s, want the redeemed yield", got)
	}
	if got := ftoken.BalanceOf(otherAddr); got.Sign() != 0 {
		t.Fatalf("holder fTokens = %s, want 0 after burn", got)
	}
	evt, ok := env.emitter.last().(events.FlashFTokenBurned)
	if !ok {
		t.Fatalf("last event = %T, want FlashFTokenBurned", env.emitter.last())
	}
	if evt.Recipient != otherAddr || evt.YieldReturned.Cmp(yield) != 0 {
		t.Fatalf("event = %+v", evt)
	}

	if _, err := env.engine.BurnFToken(otherAddr, otherAddr, ether(t, "1"), nil, common.Address{}); !errors.Is(err, flash.ErrUnregisteredStrategy) {
		t.Fatalf("burn against unknown strategy: %v", err)
	}
}

func TestFlashStakePaysUpfrontYield(t *testing.T) {
	env := newTestEnv(t)
	amount := ether(t, "1000")
	env.fund(t, stakerAddr, amount)

	// Seed the vault with surplus principal so it has yield to pay out.
	yield := ether(t, "50")
	if err := env.principal.Mint(faucetAddr, vaultAddr, yield); err != nil {
		t.Fatalf("seed yield: %v", err)
	}

	stake, paid, err := env.engine.FlashStake(stakerAddr, vaultAddr, amount, yearSeconds, big.NewInt(0), common.Address{}, false)
	if err != nil {
		t.Fatalf("flash stake: %v", err)
	}
	if paid.Cmp(yield) != 0 {
		t.Fatalf("yield paid = %s, want %s", paid, yield)
	}
	if got := env.principal.BalanceOf(stakerAddr); got.Cmp(yield) != 0 {
		t.Fatalf("staker balance = %s, want the upfront yield", got)
	}
	if got := env.fToken(t).TotalSupply(); got.Sign() != 0 {
		t.Fatalf("fToken supply = %s, want 0 after the flash burn", got)
	}
	info, err := env.engine.GetStakeInfo(stake.ID, false)
	if err != nil {
		t.Fatalf("get stake: %v", err)
	}
	if !info.Active || info.RemainingPrincipal().Cmp(amount) != 0 {
		t.Fatalf("principal should stay locked: %+v", info)
	}
}

func TestFlashStakeSlippageGuard(t *testing.T) {
	env := newTestEnv(t)
	amount := ether(t, "1000")
	env.fund(t, stakerAddr, amount)

	if _, _, err := env.engine.FlashStake(stakerAddr, vaultAddr, amount, yearSeconds, ether(t, "1"), common.Address{}, false); !errors.Is(err, flash.ErrMinimumOutput) {
		t.Fatalf("flash stake with no yield: %v", err)
	}
	// Nothing may be booked when the floor rejects the stake.
	if _, err := env.engine.GetStakeInfo(1, false); !errors.Is(err, flash.ErrStakeNotFound) {
		t.Fatalf("stake persisted despite slippage failure: %v", err)
	}
}
