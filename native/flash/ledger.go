package flash

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"flashstake/storage"
)

const (
	stakePrefix    = "flash/stake/"
	stakeSeqKey    = "flash/stake/seq"
	strategyPrefix = "flash/strategy/"
	nftPrefix      = "flash/nft/"
	mintFeeKey     = "flash/feeinfo"
)

// StoreLedger persists the flash engine state in a key-value database using
// RLP encoding. It satisfies the engine's state interface.
type StoreLedger struct {
	db storage.Database
}

// NewStoreLedger wraps the given database.
func NewStoreLedger(db storage.Database) *StoreLedger {
	return &StoreLedger{db: db}
}

type storedStake struct {
	ID                   uint64
	Owner                common.Address
	Strategy             common.Address
	StartTs              uint64
	Duration             uint64
	StakedAmount         *big.Int
	FTokensToUser        *big.Int
	FTokensFee           *big.Int
	Active               bool
	NFTID                uint64
	TotalFTokenBurned    *big.Int
	TotalStakedWithdrawn *big.Int
}

type storedStrategy struct {
	Strategy       common.Address
	PrincipalAsset common.Address
	FToken         common.Address
	RegisteredAt   uint64
}

type storedMintFee struct {
	Recipient common.Address
	FeeBps    uint64
}

func stakeKey(id uint64) []byte {
	buf := make([]byte, len(stakePrefix)+8)
	copy(buf, stakePrefix)
	binary.BigEndian.PutUint64(buf[len(stakePrefix):], id)
	return buf
}

func strategyKey(addr common.Address) []byte {
	return append([]byte(strategyPrefix), addr.Bytes()...)
}

func nftKey(id uint64) []byte {
	buf := make([]byte, len(nftPrefix)+8)
	copy(buf, nftPrefix)
	binary.BigEndian.PutUint64(buf[len(nftPrefix):], id)
	return buf
}

func (l *StoreLedger) StakeGet(id uint64) (*Stake, bool, error) {
	raw, err := l.db.Get(stakeKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var rec storedStake
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("flash ledger: decode stake %d: %w", id, err)
	}
	stake := &Stake{
		ID:                   rec.ID,
		Owner:                rec.Owner,
		Strategy:             rec.Strategy,
		StartTs:              rec.StartTs,
		Duration:             rec.Duration,
		StakedAmount:         rec.StakedAmount,
		FTokensToUser:        rec.FTokensToUser,
		FTokensFee:           rec.FTokensFee,
		Active:               rec.Active,
		NFTID:                rec.NFTID,
		TotalFTokenBurned:    rec.TotalFTokenBurned,
		TotalStakedWithdrawn: rec.TotalStakedWithdrawn,
	}
	stake.normalize()
	return stake, true, nil
}

func (l *StoreLedger) StakePut(stake *Stake) error {
	if stake == nil {
		return errors.New("flash ledger: nil stake")
	}
	cp := stake.Clone()
	cp.normalize()
	rec := storedStake{
		ID:                   cp.ID,
		Owner:                cp.Owner,
		Strategy:             cp.Strategy,
		StartTs:              cp.StartTs,
		Duration:             cp.Duration,
		StakedAmount:         cp.StakedAmount,
		FTokensToUser:        cp.FTokensToUser,
		FTokensFee:           cp.FTokensFee,
		Active:               cp.Active,
		NFTID:                cp.NFTID,
		TotalFTokenBurned:    cp.TotalFTokenBurned,
		TotalStakedWithdrawn: cp.TotalStakedWithdrawn,
	}
	raw, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("flash ledger: encode stake %d: %w", cp.ID, err)
	}
	return l.db.Put(stakeKey(cp.ID), raw)
}

// NextStakeID advances the stake sequence and returns the new id. Ids start
// at one; zero is reserved as "no stake".
func (l *StoreLedger) NextStakeID() (uint64, error) {
	var next uint64 = 1
	raw, err := l.db.Get([]byte(stakeSeqKey))
	switch {
	case err == nil:
		var cur uint64
		if err := rlp.DecodeBytes(raw, &cur); err != nil {
			return 0, fmt.Errorf("flash ledger: decode stake sequence: %w", err)
		}
		next = cur + 1
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return 0, err
	}
	enc, err := rlp.EncodeToBytes(next)
	if err != nil {
		return 0, err
	}
	if err := l.db.Put([]byte(stakeSeqKey), enc); err != nil {
		return 0, err
	}
	return next, nil
}

func (l *StoreLedger) StrategyGet(addr common.Address) (*StrategyRecord, bool, error) {
	raw, err := l.db.Get(strategyKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var rec storedStrategy
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("flash ledger: decode strategy %s: %w", addr.Hex(), err)
	}
	return &StrategyRecord{
		Strategy:       rec.Strategy,
		PrincipalAsset: rec.PrincipalAsset,
		FToken:         rec.FToken,
		RegisteredAt:   rec.RegisteredAt,
	}, true, nil
}

func (l *StoreLedger) StrategyPut(record *StrategyRecord) error {
	if record == nil {
		return errors.New("flash ledger: nil strategy record")
	}
	rec := storedStrategy{
		Strategy:       record.Strategy,
		PrincipalAsset: record.PrincipalAsset,
		FToken:         record.FToken,
		RegisteredAt:   record.RegisteredAt,
	}
	raw, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("flash ledger: encode strategy %s: %w", record.Strategy.Hex(), err)
	}
	return l.db.Put(strategyKey(record.Strategy), raw)
}

func (l *StoreLedger) NFTStake(nftID uint64) (uint64, bool, error) {
	raw, err := l.db.Get(nftKey(nftID))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	var stakeID uint64
	if err := rlp.DecodeBytes(raw, &stakeID); err != nil {
		return 0, false, fmt.Errorf("flash ledger: decode nft mapping %d: %w", nftID, err)
	}
	return stakeID, true, nil
}

func (l *StoreLedger) NFTMap(nftID, stakeID uint64) error {
	raw, err := rlp.EncodeToBytes(stakeID)
	if err != nil {
		return err
	}
	return l.db.Put(nftKey(nftID), raw)
}

func (l *StoreLedger) MintFeeGet() (*MintFeeInfo, bool, error) {
	raw, err := l.db.Get([]byte(mintFeeKey))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var rec storedMintFee
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("flash ledger: decode fee info: %w", err)
	}
	return &MintFeeInfo{Recipient: rec.Recipient, FeeBps: rec.FeeBps}, true, nil
}

func (l *StoreLedger) MintFeePut(info *MintFeeInfo) error {
	if info == nil {
		return errors.New("flash ledger: nil fee info")
	}
	raw, err := rlp.EncodeToBytes(&storedMintFee{Recipient: info.Recipient, FeeBps: info.FeeBps})
	if err != nil {
		return fmt.Errorf("flash ledger: encode fee info: %w", err)
	}
	return l.db.Put([]byte(mintFeeKey), raw)
}
