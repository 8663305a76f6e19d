package token

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	errNFTNotFound      = errors.New("nft registry: token does not exist")
	errNFTNotOwner      = errors.New("nft registry: caller does not own token")
	errNFTNotAuthorised = errors.New("nft registry: caller may not mint")
)

// NFTRegistry tracks non-fungible receipt tokens. Ids are monotonic and
// 1-based; 0 is never issued.
type NFTRegistry struct {
	mu      sync.RWMutex
	minters map[common.Address]struct{}
	owners  map[uint64]common.Address
	nextID  uint64
}

// NewNFTRegistry constructs a registry whose mint authority is held by minter.
func NewNFTRegistry(minter common.Address) *NFTRegistry {
	r := &NFTRegistry{
		minters: make(map[common.Address]struct{}),
		owners:  make(map[uint64]common.Address),
	}
	r.minters[minter] = struct{}{}
	return r
}

// Mint issues a new token to the recipient and returns its id.
func (r *NFTRegistry) Mint(caller, to common.Address) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.minters[caller]; !ok {
		return 0, errNFTNotAuthorised
	}
	r.nextID++
	r.owners[r.nextID] = to
	return r.nextID, nil
}

// OwnerOf resolves the current holder of a token.
func (r *NFTRegistry) OwnerOf(id uint64) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[id]
	if !ok {
		return common.Address{}, errNFTNotFound
	}
	return owner, nil
}

// Exists reports whether a token with the given id has been minted.
func (r *NFTRegistry) Exists(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owners[id]
	return ok
}

// Transfer moves a token to a new holder. Only the current holder may move it.
func (r *NFTRegistry) Transfer(caller, to common.Address, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[id]
	if !ok {
		return errNFTNotFound
	}
	if owner != caller {
		return errNFTNotOwner
	}
	r.owners[id] = to
	return nil
}
