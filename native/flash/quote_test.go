package flash

import (
	"math/big"
	"testing"
)

func mustBig(t *testing.T, value string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		t.Fatalf("invalid big integer literal %q", value)
	}
	return v
}

func TestQuoteMintOneYearPar(t *testing.T) {
	got, err := QuoteMintFToken(mustBig(t, "1000000000000000000"), 31536000)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	want := mustBig(t, "1000000000512000000")
	if got.Cmp(want) != 0 {
		t.Fatalf("one year quote = %s, want %s", got, want)
	}
}

func TestQuoteMintScalesLinearly(t *testing.T) {
	cases := []struct {
		name     string
		amount   string
		duration uint64
		want     string
	}{
		{"half year", "1000000000000000000", 15768000, "500000000256000000"},
		{"ten years", "1000000000000000000", 315360000, "10000000005120000000"},
		{"one day", "1000000000000000000", 86400, "2739726028800000"},
		{"61 seconds", "1000000000000000000", 61, "1934297312000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := QuoteMintFToken(mustBig(t, tc.amount), tc.duration)
			if err != nil {
				t.Fatalf("quote: %v", err)
			}
			if got.Cmp(mustBig(t, tc.want)) != 0 {
				t.Fatalf("quote = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestQuoteMintTruncates(t *testing.T) {
	// 1e8 over 60 seconds is 190.2587... before truncation.
	got, err := QuoteMintFToken(big.NewInt(100000000), 60)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if got.Cmp(big.NewInt(190)) != 0 {
		t.Fatalf("quote = %s, want 190", got)
	}
}

func TestQuoteMintRejectsBadInputs(t *testing.T) {
	if _, err := QuoteMintFToken(nil, 3600); err != ErrInvalidAmount {
		t.Fatalf("nil amount: got %v, want %v", err, ErrInvalidAmount)
	}
	if _, err := QuoteMintFToken(big.NewInt(0), 3600); err != ErrInvalidAmount {
		t.Fatalf("zero amount: got %v, want %v", err, ErrInvalidAmount)
	}
	if _, err := QuoteMintFToken(big.NewInt(1), 59); err != ErrDurationTooLow {
		t.Fatalf("59s duration: got %v, want %v", err, ErrDurationTooLow)
	}
}

func TestQuoteBurnProRata(t *testing.T) {
	yield := mustBig(t, "500000000000000000")
	supply := mustBig(t, "1000000000512000000")
	got, err := QuoteBurnFToken(supply, yield, supply)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if got.Cmp(yield) != 0 {
		t.Fatalf("burning full supply should claim full yield, got %s", got)
	}

	half := new(big.Int).Quo(supply, big.NewInt(2))
	got, err = QuoteBurnFToken(half, yield, supply)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	want := new(big.Int).Quo(new(big.Int).Mul(yield, half), supply)
	if got.Cmp(want) != 0 {
		t.Fatalf("half supply burn = %s, want %s", got, want)
	}
}

func TestQuoteBurnZeroSupply(t *testing.T) {
	if _, err := QuoteBurnFToken(big.NewInt(1), big.NewInt(100), big.NewInt(0)); err != ErrInsufficientSupply {
		t.Fatalf("zero supply: got %v, want %v", err, ErrInsufficientSupply)
	}
}

func TestSplitFee(t *testing.T) {
	total := mustBig(t, "1000000000512000000000")
	toUser, fee := SplitFee(total, 2000)
	if toUser.Cmp(mustBig(t, "800000000409600000000")) != 0 {
		t.Fatalf("toUser = %s", toUser)
	}
	if fee.Cmp(mustBig(t, "200000000102400000000")) != 0 {
		t.Fatalf("fee = %s", fee)
	}
	sum := new(big.Int).Add(toUser, fee)
	if sum.Cmp(total) != 0 {
		t.Fatalf("split must conserve total: %s + %s != %s", toUser, fee, total)
	}

	toUser, fee = SplitFee(total, 0)
	if toUser.Cmp(total) != 0 || fee.Sign() != 0 {
		t.Fatalf("zero fee split = (%s, %s)", toUser, fee)
	}
}

func TestUnstakeQuoteDecaysLinearly(t *testing.T) {
	stake := &Stake{
		ID:                   1,
		StartTs:              1000,
		Duration:             1000,
		StakedAmount:         mustBig(t, "1000000000000000000000"),
		FTokensToUser:        mustBig(t, "1000000000512000000000"),
		FTokensFee:           big.NewInt(0),
		Active:               true,
		TotalFTokenBurned:    big.NewInt(0),
		TotalStakedWithdrawn: big.NewInt(0),
	}

	burnCap, userCap, matured := UnstakeQuote(stake, 1600)
	if matured {
		t.Fatal("stake should not be matured at 60% elapsed")
	}
	// 40% of the total mint remains to be paid.
	wantCap := new(big.Int).Quo(new(big.Int).Mul(stake.TotalMinted(), big.NewInt(400)), big.NewInt(1000))
	if burnCap.Cmp(wantCap) != 0 {
		t.Fatalf("burnCap = %s, want %s", burnCap, wantCap)
	}
	if userCap.Cmp(stake.FTokensToUser) != 0 {
		t.Fatalf("userCap = %s, want full user mint", userCap)
	}

	_, _, matured = UnstakeQuote(stake, 2000)
	if !matured {
		t.Fatal("stake should be matured at the end timestamp")
	}
}

func TestUnstakeQuoteAccountsForPriorBurns(t *testing.T) {
	stake := &Stake{
		ID:                   1,
		StartTs:              0,
		Duration:             1000,
		StakedAmount:         mustBig(t, "1000000000000000000000"),
		FTokensToUser:        mustBig(t, "1000000000512000000000"),
		FTokensFee:           big.NewInt(0),
		Active:               true,
		TotalFTokenBurned:    mustBig(t, "500000000256000000000"),
		TotalStakedWithdrawn: big.NewInt(0),
	}

	// At 60% elapsed the time cap alone is 40% of mint, which is below the
	// amount already burned, so nothing further is owed.
	burnCap, _, matured := UnstakeQuote(stake, 600)
	if matured {
		t.Fatal("not matured")
	}
	if burnCap.Sign() != 0 {
		t.Fatalf("burnCap = %s, want 0 after prior burns exceed the decayed requirement", burnCap)
	}

	// At 40% elapsed 60% of mint is owed in total, less the half already paid.
	burnCap, _, _ = UnstakeQuote(stake, 400)
	want := new(big.Int).Sub(
		new(big.Int).Quo(new(big.Int).Mul(stake.TotalMinted(), big.NewInt(600)), big.NewInt(1000)),
		stake.TotalFTokenBurned,
	)
	if burnCap.Cmp(want) != 0 {
		t.Fatalf("burnCap = %s, want %s", burnCap, want)
	}
}
