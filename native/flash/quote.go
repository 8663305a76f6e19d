package flash

import "math/big"

// mintRatePerSecond is the fixed-point mint rate: fTokens minted per second per
// 1e18 units of principal. The value is a calibration constant carried over
// from the original deployment; locking principal for exactly one year mints
// principal * 1.000000000512 fTokens, so quotes stay comparable across
// durations at a "par" of one year. Changing it breaks wire compatibility with
// every historical quote.
const mintRatePerSecond = 31709792000

var (
	basisPoints = big.NewInt(10_000)
	oneE18      = big.NewInt(1_000_000_000_000_000_000)
	mintRate    = big.NewInt(mintRatePerSecond)
)

// QuoteMintFToken converts (principal, duration) into the fToken quantity
// minted at stake time. Pure: strictly increasing in both arguments, truncating
// fixed-point arithmetic, defined for durations of at least MinStakeDuration.
func QuoteMintFToken(amount *big.Int, duration uint64) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if duration < MinStakeDuration {
		return nil, ErrDurationTooLow
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(duration))
	out.Mul(out, mintRate)
	return out.Quo(out, oneE18), nil
}

// QuoteBurnFToken computes the yield released for burning fTokenAmount against
// a strategy holding yieldBalance with the given outstanding fToken supply.
// Burning fraction x of the supply releases x of the accrued yield. Pure: the
// yield balance is read, never mutated, so the quote is safe to evaluate
// anywhere, including nested inside a mutating call.
func QuoteBurnFToken(fTokenAmount, yieldBalance, totalSupply *big.Int) (*big.Int, error) {
	if fTokenAmount == nil || fTokenAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return nil, ErrInsufficientSupply
	}
	if yieldBalance == nil || yieldBalance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	out := new(big.Int).Mul(fTokenAmount, yieldBalance)
	return out.Quo(out, totalSupply), nil
}

// SplitFee divides a total mint quote into the user and fee portions using the
// configured basis-point cut.
func SplitFee(total *big.Int, feeBps uint64) (toUser, fee *big.Int) {
	fee = new(big.Int).Mul(total, new(big.Int).SetUint64(feeBps))
	fee.Quo(fee, basisPoints)
	toUser = new(big.Int).Sub(total, fee)
	return toUser, fee
}

// UnstakeQuote returns the redemption bounds for a stake at the given time.
//
// burnCap is the largest fToken amount the engine will accept this call: the
// time-value of the stake still outstanding. It decays linearly with elapsed
// time, net of everything already burned, so the cumulative burn for a full
// early exit plus the elapsed time always add up to the stake's total mint.
// Burning exactly burnCap releases all remaining principal; burning less
// releases stakedAmount * burn / totalMint. userCap additionally bounds the
// burn by the staker's own unburned share so fee-share tokens are never
// charged against this stake's principal. matured reports that the duration
// has fully elapsed: settlement is then free and burnCap is zero.
func UnstakeQuote(s *Stake, now uint64) (burnCap, userCap *big.Int, matured bool) {
	userCap = new(big.Int).Sub(s.FTokensToUser, s.TotalFTokenBurned)
	if userCap.Sign() < 0 {
		userCap = big.NewInt(0)
	}
	if s.Matured(now) {
		return big.NewInt(0), userCap, true
	}
	secondsLeft := s.EndTs() - now
	burnCap = new(big.Int).Mul(s.TotalMinted(), new(big.Int).SetUint64(secondsLeft))
	burnCap.Quo(burnCap, new(big.Int).SetUint64(s.Duration))
	burnCap.Sub(burnCap, s.TotalFTokenBurned)
	if burnCap.Sign() < 0 {
		burnCap = big.NewInt(0)
	}
	return burnCap, userCap, false
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
