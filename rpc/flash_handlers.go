package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"flashstake/native/flash"
	"flashstake/native/strategy"
	"flashstake/token"
)

type flashStakeParams struct {
	Staker    string `json:"staker"`
	Strategy  string `json:"strategy"`
	Amount    string `json:"amount"`
	Duration  uint64 `json:"duration"`
	Recipient string `json:"recipient,omitempty"`
	IssueNFT  bool   `json:"issueNft,omitempty"`
}

type flashUnstakeParams struct {
	Caller        string `json:"caller"`
	ID            uint64 `json:"id"`
	UseNFT        bool   `json:"useNft,omitempty"`
	FTokensToBurn string `json:"fTokensToBurn,omitempty"`
}

type flashFlashStakeParams struct {
	Caller          string `json:"caller"`
	Strategy        string `json:"strategy"`
	Amount          string `json:"amount"`
	Duration        uint64 `json:"duration"`
	MinimumReceived string `json:"minimumReceived,omitempty"`
	YieldRecipient  string `json:"yieldRecipient,omitempty"`
	IssueNFT        bool   `json:"issueNft,omitempty"`
}

type flashIssueNFTParams struct {
	Caller  string `json:"caller"`
	StakeID uint64 `json:"stakeId"`
}

type flashGetStakeParams struct {
	ID     uint64 `json:"id"`
	UseNFT bool   `json:"useNft,omitempty"`
}

type flashQuoteMintParams struct {
	Strategy string `json:"strategy"`
	Amount   string `json:"amount"`
	Duration uint64 `json:"duration"`
}

type flashQuoteBurnParams struct {
	Strategy string `json:"strategy"`
	Amount   string `json:"amount"`
}

type flashStrategyParams struct {
	Address string `json:"address"`
}

type flashRegisterStrategyParams struct {
	Address         string `json:"address"`
	PrincipalAsset  string `json:"principalAsset,omitempty"`
	PrincipalName   string `json:"principalName,omitempty"`
	PrincipalSymbol string `json:"principalSymbol,omitempty"`
	FTokenName      string `json:"fTokenName"`
	FTokenSymbol    string `json:"fTokenSymbol"`
}

type flashSetMintFeeParams struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
	FeeBps    uint64 `json:"feeBps"`
}

type flashBurnFTokenParams struct {
	Caller          string `json:"caller"`
	Strategy        string `json:"strategy"`
	Amount          string `json:"amount"`
	MinimumReturned string `json:"minimumReturned,omitempty"`
	Recipient       string `json:"recipient,omitempty"`
}

type tokenBalanceParams struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

type tokenMintParams struct {
	Token  string `json:"token"`
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type tokenApproveParams struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type tokenTransferParams struct {
	Token  string `json:"token"`
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type stakeResult struct {
	ID                   uint64 `json:"id"`
	Owner                string `json:"owner"`
	Strategy             string `json:"strategy"`
	StartTs              uint64 `json:"startTs"`
	EndTs                uint64 `json:"endTs"`
	Duration             uint64 `json:"duration"`
	StakedAmount         string `json:"stakedAmount"`
	FTokensToUser        string `json:"fTokensToUser"`
	FTokensFee           string `json:"fTokensFee"`
	Active               bool   `json:"active"`
	NFTID                uint64 `json:"nftId,omitempty"`
	TotalFTokenBurned    string `json:"totalFTokenBurned"`
	TotalStakedWithdrawn string `json:"totalStakedWithdrawn"`
	RemainingPrincipal   string `json:"remainingPrincipal"`
}

type unstakeResult struct {
	TokensReturned string `json:"tokensReturned"`
	FTokensBurned  string `json:"fTokensBurned"`
}

type flashStakeResult struct {
	Stake stakeResult `json:"stake"`
	Yield string      `json:"yield"`
}

type strategyResult struct {
	Strategy       string `json:"strategy"`
	PrincipalAsset string `json:"principalAsset"`
	FToken         string `json:"fToken"`
	RegisteredAt   uint64 `json:"registeredAt"`
}

type mintFeeResult struct {
	Recipient string `json:"recipient"`
	FeeBps    uint64 `json:"feeBps"`
}

func stakeResultFrom(s *flash.Stake) stakeResult {
	return stakeResult{
		ID:                   s.ID,
		Owner:                s.Owner.Hex(),
		Strategy:             s.Strategy.Hex(),
		StartTs:              s.StartTs,
		EndTs:                s.EndTs(),
		Duration:             s.Duration,
		StakedAmount:         s.StakedAmount.String(),
		FTokensToUser:        s.FTokensToUser.String(),
		FTokensFee:           s.FTokensFee.String(),
		Active:               s.Active,
		NFTID:                s.NFTID,
		TotalFTokenBurned:    s.TotalFTokenBurned.String(),
		TotalStakedWithdrawn: s.TotalStakedWithdrawn.String(),
		RemainingPrincipal:   s.RemainingPrincipal().String(),
	}
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errInvalidParamCount
	}
	return json.Unmarshal(req.Params[0], out)
}

var errInvalidParamCount = jsonParamError("expected a single parameter object")

type jsonParamError string

func (e jsonParamError) Error() string { return string(e) }

func parseAddr(value string) (common.Address, bool) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, false
	}
	return common.HexToAddress(trimmed), true
}

// parseOptionalAddr treats an empty string as the zero address.
func parseOptionalAddr(value string) (common.Address, bool) {
	if strings.TrimSpace(value) == "" {
		return common.Address{}, true
	}
	return parseAddr(value)
}

func parseAmount(value string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, false
	}
	return amount, true
}

// parseOptionalAmount treats an empty string as zero.
func parseOptionalAmount(value string) (*big.Int, bool) {
	if strings.TrimSpace(value) == "" {
		return big.NewInt(0), true
	}
	return parseAmount(value)
}

func (s *Server) handleFlashStake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params flashStakeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	staker, ok := parseAddr(params.Staker)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid staker address", params.Staker)
		return
	}
	strategyAddr, ok := parseAddr(params.Strategy)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid strategy address", params.Strategy)
		return
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", params.Amount)
		return
	}
	recipient, ok := parseOptionalAddr(params.Recipient)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid recipient address", params.Recipient)
		return
	}
	stake, err := s.engine.Stake(staker, strategyAddr, amount, params.Duration, recipient, params.IssueNFT)
	if err != nil {
		s.metrics.IncRPCRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	toUser, _ := new(big.Float).SetInt(stake.FTokensToUser).Float64()
	s.metrics.ObserveStakeCreated(strategyAddr.Hex(), toUser/1e18)
	writeResult(w, req.ID, stakeResultFrom(stake))
}

func (s *Server) handleFlashUnstake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params flashUnstakeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, ok := parseAddr(params.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", params.Caller)
		return
	}
	burnRequest, ok := parseOptionalAmount(params.FTokensToBurn)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid fTokensToBurn", params.FTokensToBurn)
		return
	}
	returned, burned, err := s.engine.Unstake(caller, params.ID, params.UseNFT, burnRequest)
	if err != nil {
		s.metrics.IncRPCRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	strategyLabel := ""
	outcome := "partial"
	if info, infoErr := s.engine.GetStakeInfo(params.ID, params.UseNFT); infoErr == nil {
		strategyLabel = info.Strategy.Hex()
		if !info.Active {
			outcome = "settled"
		}
	}
	burnedF, _ := new(big.Float).SetInt(burned).Float64()
	s.metrics.ObserveUnstake(strategyLabel, outcome, burnedF/1e18)
	writeResult(w, req.ID, unstakeResult{
		TokensReturned: returned.String(),
		FTokensBurned:  burned.String(),
	})
}

func (s *Server) handleFlashFlashStake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params flashFlashStakeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, ok := parseAddr(params.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", params.Caller)
		return
	}
	strategyAddr, ok := parseAddr(params.Strategy)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid strategy address", params.Strategy)
		return
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", params.Amount)
		return
	}
	minimum, ok := parseOptionalAmount(params.MinimumReceived)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minimumReceived", params.MinimumReceived)
		return
	}
	yieldRecipient, ok := parseOptionalAddr(params.YieldRecipient)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid yieldRecipient address", params.YieldRecipient)
		return
	}
	stake, yield, err := s.engine.FlashStake(caller, strategyAddr, amount, params.Duration, minimum, yieldRecipient, params.IssueNFT)
	if err != nil {
		s.metrics.IncRPCRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	writeResult(w, req.ID, flashStakeResult{
		Stake: stakeResultFrom(stake),
		Yield: yield.String(),
	})
}

func (s *Server) handleFlashBurnFToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params flashBurnFTokenParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, ok := parseAddr(params.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", params.Caller)
		return
	}
	strategyAddr, ok := parseAddr(params.Strategy)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid strategy address", params.Strategy)
		return
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", params.Amount)
		return
	}
	minimum, ok := parseOptionalAmount(params.MinimumReturned)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minimumReturned", params.MinimumReturned)
		return
	}
	recipient, ok := parseOptionalAddr(params.Recipient)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid recipient address", params.Recipient)
		return
	}
	yield, err := s.engine.BurnFToken(caller, strategyAddr, amount, minimum, recipient)
	if err != nil {
		s.metrics.IncRPCRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]string{"yield": yield.String()})
}

func (s *Server) handleFlashIssueNFT(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params flashIssueNFTParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, ok := parseAddr(params.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", params.Caller)
		return
	}
	nftID, err := s.engine.IssueNFT(caller, params.StakeID)
	if err != nil {
		s.metrics.IncRPCRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"nftId": nftID})
}

func (s *Server) handleFlashGetStakeInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params flashGetStakeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	stake, err := s.engine.GetStakeInfo(params.ID, params.UseNFT)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	writeResult(w, req.ID, stakeResultFrom(stake))
}

func (s *Server) handleFlashQuoteMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params flashQuoteMintParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", params.Amount)
		return
	}
	var quoted *big.Int
	var err error
	if strings.TrimSpace(params.Strategy) == "" {
		quoted, err = flash.QuoteMintFToken(amount, params.Duration)
	} else {
		strategyAddr, ok := parseAddr(params.Strategy)
		if !ok {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid strategy address", params.Strategy)
			return
		}
		quoted, err = s.engine.QuoteMint(strategyAddr, amount, params.Duration)
	}
	if err != nil {
		writeError(w, http.StatusOK, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]string{"fTokens": quoted.String()})
}

func (s *Server) handleFlashQuoteBurn(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params flashQuoteBurnParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	strategyAddr, ok := parseAddr(params.Strategy)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid strategy address", params.Strategy)
		return
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", params.Amount)
		return
	}
	yield, err := s.engine.QuoteBurn(strategyAddr, amount)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]string{"yield": yield.String()})
}

func (s *Server) handleFlashGetStrategy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params flashStrategyParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	strategyAddr, ok := parseAddr(params.Address)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid strategy address", params.Address)
		return
	}
	record, err := s.engine.StrategyInfo(strategyAddr)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	writeResult(w, req.ID, strategyResult{
		Strategy:       record.Strategy.Hex(),
		PrincipalAsset: record.PrincipalAsset.Hex(),
		FToken:         record.FToken.Hex(),
		RegisteredAt:   record.RegisteredAt,
	})
}

func (s *Server) handleFlashRegisterStrategy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params flashRegisterStrategyParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	vaultAddr, ok := parseAddr(params.Address)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid strategy address", params.Address)
		return
	}
	var principal *token.Ledger
	if strings.TrimSpace(params.PrincipalAsset) != "" {
		asset, ok := parseAddr(params.PrincipalAsset)
		if !ok {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid principalAsset address", params.PrincipalAsset)
			return
		}
		ledger, err := s.tokens.Get(asset)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "unknown principal asset", params.PrincipalAsset)
			return
		}
		principal = ledger
	} else {
		if strings.TrimSpace(params.PrincipalSymbol) == "" {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "principalAsset or principalSymbol required", nil)
			return
		}
		principal = s.tokens.Create(params.PrincipalName, params.PrincipalSymbol, token.FaucetAddress(vaultAddr))
	}
	vault := strategy.NewVault(vaultAddr, s.engine.Owner(), s.engine.Address(), principal)
	record, err := s.engine.RegisterStrategy(vaultAddr, vault, principal.Address(), params.FTokenName, params.FTokenSymbol)
	if err != nil {
		s.metrics.IncRPCRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	writeResult(w, req.ID, strategyResult{
		Strategy:       record.Strategy.Hex(),
		PrincipalAsset: record.PrincipalAsset.Hex(),
		FToken:         record.FToken.Hex(),
		RegisteredAt:   record.RegisteredAt,
	})
}

func (s *Server) handleFlashGetMintFeeInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	info, err := s.engine.MintFeeInfo()
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, mintFeeResult{Recipient: info.Recipient.Hex(), FeeBps: info.FeeBps})
}

func (s *Server) handleFlashSetMintFeeInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params flashSetMintFeeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, ok := parseAddr(params.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", params.Caller)
		return
	}
	recipient, ok := parseOptionalAddr(params.Recipient)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid recipient address", params.Recipient)
		return
	}
	if err := s.engine.SetMintFeeInfo(caller, recipient, params.FeeBps); err != nil {
		s.metrics.IncRPCRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	writeResult(w, req.ID, mintFeeResult{Recipient: recipient.Hex(), FeeBps: params.FeeBps})
}

func (s *Server) handleTokenGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenBalanceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	tokenAddr, ok := parseAddr(params.Token)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", params.Token)
		return
	}
	holder, ok := parseAddr(params.Address)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid holder address", params.Address)
		return
	}
	ledger, err := s.tokens.Get(tokenAddr)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"token":   tokenAddr.Hex(),
		"address": holder.Hex(),
		"balance": ledger.BalanceOf(holder).String(),
	})
}

// handleTokenMint issues principal from a token's faucet. The ledger enforces
// the minter gate, so the call only succeeds when caller is a minter of the
// token, which for vault principals is the derived faucet address.
func (s *Server) handleTokenMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenMintParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	tokenAddr, ok := parseAddr(params.Token)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", params.Token)
		return
	}
	caller, ok := parseAddr(params.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", params.Caller)
		return
	}
	to, ok := parseAddr(params.To)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to address", params.To)
		return
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", params.Amount)
		return
	}
	ledger, err := s.tokens.Get(tokenAddr)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := ledger.Mint(caller, to, amount); err != nil {
		s.metrics.IncRPCRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"token":   tokenAddr.Hex(),
		"address": to.Hex(),
		"balance": ledger.BalanceOf(to).String(),
	})
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenApproveParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	tokenAddr, ok := parseAddr(params.Token)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", params.Token)
		return
	}
	owner, ok := parseAddr(params.Owner)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", params.Owner)
		return
	}
	spender, ok := parseAddr(params.Spender)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid spender address", params.Spender)
		return
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", params.Amount)
		return
	}
	ledger, err := s.tokens.Get(tokenAddr)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	ledger.Approve(owner, spender, amount)
	writeResult(w, req.ID, map[string]string{
		"token":     tokenAddr.Hex(),
		"owner":     owner.Hex(),
		"spender":   spender.Hex(),
		"allowance": ledger.Allowance(owner, spender).String(),
	})
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenTransferParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	tokenAddr, ok := parseAddr(params.Token)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid token address", params.Token)
		return
	}
	caller, ok := parseAddr(params.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", params.Caller)
		return
	}
	to, ok := parseAddr(params.To)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to address", params.To)
		return
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", params.Amount)
		return
	}
	ledger, err := s.tokens.Get(tokenAddr)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := ledger.Transfer(caller, to, amount); err != nil {
		s.metrics.IncRPCRequest(req.Method, "error")
		writeError(w, http.StatusOK, req.ID, errorCode(err), err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"token":   tokenAddr.Hex(),
		"address": caller.Hex(),
		"balance": ledger.BalanceOf(caller).String(),
	})
}
