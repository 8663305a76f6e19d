package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"flashstake/core/types"
)

const (
	// TypeFlashStrategyRegistered is emitted once when a strategy joins the
	// protocol and its fToken ledger is created.
	TypeFlashStrategyRegistered = "flash.strategyRegistered"
	// TypeFlashStaked captures a new stake and the fToken split minted for it.
	TypeFlashStaked = "flash.staked"
	// TypeFlashNFTIssued is emitted when a receipt NFT takes over the unstake
	// rights for a stake.
	TypeFlashNFTIssued = "flash.nftIssued"
	// TypeFlashUnstaked captures any principal release, partial or final.
	TypeFlashUnstaked = "flash.unstaked"
	// TypeFlashFTokenBurned captures a yield redemption against a strategy.
	TypeFlashFTokenBurned = "flash.fTokenBurned"
)

// FlashStrategyRegistered is broadcast when a strategy adapter is bound to the
// protocol together with its freshly created fToken ledger.
type FlashStrategyRegistered struct {
	Strategy       common.Address
	PrincipalAsset common.Address
	FToken         common.Address
	RegisteredAt   int64
}

// EventType satisfies the Event interface.
func (FlashStrategyRegistered) EventType() string { return TypeFlashStrategyRegistered }

// Event renders the canonical payload consumed by indexers.
func (e FlashStrategyRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeFlashStrategyRegistered,
		Attributes: map[string]string{
			"strategy":       e.Strategy.Hex(),
			"principalAsset": e.PrincipalAsset.Hex(),
			"fToken":         e.FToken.Hex(),
			"registeredAt":   intToString(e.RegisteredAt),
		},
	}
}

// FlashStaked captures the creation of a stake.
type FlashStaked struct {
	StakeID       uint64
	Staker        common.Address
	Strategy      common.Address
	Amount        *big.Int
	Duration      uint64
	FTokensToUser *big.Int
	FTokensFee    *big.Int
	NFTID         uint64
}

// EventType satisfies the Event interface.
func (FlashStaked) EventType() string { return TypeFlashStaked }

// Event renders the canonical payload consumed by indexers.
func (e FlashStaked) Event() *types.Event {
	return &types.Event{
		Type: TypeFlashStaked,
		Attributes: map[string]string{
			"stakeId":       strconv.FormatUint(e.StakeID, 10),
			"staker":        e.Staker.Hex(),
			"strategy":      e.Strategy.Hex(),
			"amount":        formatAmount(e.Amount),
			"duration":      strconv.FormatUint(e.Duration, 10),
			"fTokensToUser": formatAmount(e.FTokensToUser),
			"fTokensFee":    formatAmount(e.FTokensFee),
			"nftId":         strconv.FormatUint(e.NFTID, 10),
		},
	}
}

// FlashNFTIssued is broadcast when the receipt NFT for a stake is minted.
type FlashNFTIssued struct {
	StakeID uint64
	NFTID   uint64
	Owner   common.Address
}

// EventType satisfies the Event interface.
func (FlashNFTIssued) EventType() string { return TypeFlashNFTIssued }

// Event renders the canonical payload consumed by indexers.
func (e FlashNFTIssued) Event() *types.Event {
	return &types.Event{
		Type: TypeFlashNFTIssued,
		Attributes: map[string]string{
			"stakeId": strconv.FormatUint(e.StakeID, 10),
			"nftId":   strconv.FormatUint(e.NFTID, 10),
			"owner":   e.Owner.Hex(),
		},
	}
}

// FlashUnstaked captures a redemption against a stake. TokensReturned is the
// principal released this call and FTokensBurned the fTokens consumed for it.
type FlashUnstaked struct {
	StakeID        uint64
	Caller         common.Address
	TokensReturned *big.Int
	FTokensBurned  *big.Int
	Settled        bool
}

// EventType satisfies the Event interface.
func (FlashUnstaked) EventType() string { return TypeFlashUnstaked }

// Event renders the canonical payload consumed by indexers.
func (e FlashUnstaked) Event() *types.Event {
	return &types.Event{
		Type: TypeFlashUnstaked,
		Attributes: map[string]string{
			"stakeId":        strconv.FormatUint(e.StakeID, 10),
			"caller":         e.Caller.Hex(),
			"tokensReturned": formatAmount(e.TokensReturned),
			"fTokensBurned":  formatAmount(e.FTokensBurned),
			"settled":        strconv.FormatBool(e.Settled),
		},
	}
}

// FlashFTokenBurned captures a yield redemption routed through a strategy.
type FlashFTokenBurned struct {
	Strategy      common.Address
	Caller        common.Address
	FTokensBurned *big.Int
	YieldReturned *big.Int
	Recipient     common.Address
}

// EventType satisfies the Event interface.
func (FlashFTokenBurned) EventType() string { return TypeFlashFTokenBurned }

// Event renders the canonical payload consumed by indexers.
func (e FlashFTokenBurned) Event() *types.Event {
	return &types.Event{
		Type: TypeFlashFTokenBurned,
		Attributes: map[string]string{
			"strategy":      e.Strategy.Hex(),
			"caller":        e.Caller.Hex(),
			"fTokensBurned": formatAmount(e.FTokensBurned),
			"yieldReturned": formatAmount(e.YieldReturned),
			"recipient":     e.Recipient.Hex(),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}
