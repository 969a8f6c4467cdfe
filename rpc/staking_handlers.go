package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"stakeledger/crypto"
	"stakeledger/native/staking"
)

type stakingInitializeParams struct {
	Caller          string `json:"caller"`
	Token           string `json:"token"`
	RewardRate      string `json:"rewardRate"`
	BonusMultiplier uint32 `json:"bonusMultiplier"`
	MinStake        string `json:"minStake"`
	MaxStake        string `json:"maxStake"`
}

type stakingStakeParams struct {
	Caller         string `json:"caller"`
	Amount         string `json:"amount"`
	LockPeriod     uint64 `json:"lockPeriod"`
	VestingPeriods uint32 `json:"vestingPeriods,omitempty"`
}

type stakingCallerParams struct {
	Caller string `json:"caller"`
}

type stakingUpdatePoolParams struct {
	Caller          string  `json:"caller"`
	RewardRate      *string `json:"rewardRate,omitempty"`
	BonusMultiplier *uint32 `json:"bonusMultiplier,omitempty"`
}

type stakingEmergencyParams struct {
	Caller  string `json:"caller"`
	Enabled bool   `json:"enabled"`
}

func decodeBech32(addr string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(addr))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func parseAmount(amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

// parseBigInt accepts any well-formed base-10 integer. Sign policy stays with
// the engine so pool bounds are validated in exactly one place.
func parseBigInt(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s", field)
	}
	return value, nil
}

// parseAddressParam reads the single bech32 string parameter used by the
// read-only account queries.
func parseAddressParam(params []json.RawMessage) ([20]byte, error) {
	var out [20]byte
	if len(params) != 1 {
		return out, fmt.Errorf("exactly one address parameter expected")
	}
	var addr string
	if err := json.Unmarshal(params[0], &addr); err != nil {
		return out, fmt.Errorf("address must be a string")
	}
	return decodeBech32(addr)
}

func unmarshalSingleParam(req *RPCRequest, target interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	if err := json.Unmarshal(req.Params[0], target); err != nil {
		return fmt.Errorf("invalid parameter object: %v", err)
	}
	return nil
}

// writeStakingError maps engine failures onto JSON-RPC error codes. Arithmetic
// faults surface as server errors since they indicate corrupted state rather
// than a rejected request.
func writeStakingError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case staking.IsFault(err):
		writeError(w, http.StatusInternalServerError, id, codeServerError, "staking engine fault", err.Error())
	case errors.Is(err, staking.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, staking.ErrNotInitialized),
		errors.Is(err, staking.ErrPositionNotFound),
		errors.Is(err, staking.ErrNotStaked):
		writeError(w, http.StatusNotFound, id, codeServerError, err.Error(), nil)
	case errors.Is(err, staking.ErrInvalidAmount),
		errors.Is(err, staking.ErrInvalidLockPeriod),
		errors.Is(err, staking.ErrInvalidPoolConfig),
		errors.Is(err, staking.ErrInsufficientBalance),
		errors.Is(err, staking.ErrAlreadyStaked),
		errors.Is(err, staking.ErrLockPeriodNotExpired),
		errors.Is(err, staking.ErrEmergencyMode):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
	}
}

// poolSnapshot assembles the full pool view returned by the pool-facing
// methods.
func (s *Server) poolSnapshot() (poolInfoResult, error) {
	pool, err := s.node.StakingPoolInfo()
	if err != nil {
		return poolInfoResult{}, err
	}
	admin, err := s.node.StakingAdmin()
	if err != nil {
		return poolInfoResult{}, err
	}
	emergency, err := s.node.EmergencyMode()
	if err != nil {
		return poolInfoResult{}, err
	}
	return poolInfoResultFrom(pool, admin, emergency, s.node.StakingVaultAddress()), nil
}

func (s *Server) handleStakingInitialize(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.guardMutation(w, r, req) {
		return
	}
	var params stakingInitializeParams
	if err := unmarshalSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	rewardRate, err := parseBigInt("rewardRate", params.RewardRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	minStake, err := parseBigInt("minStake", params.MinStake)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	maxStake, err := parseBigInt("maxStake", params.MaxStake)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.StakingInitialize(caller, params.Token, rewardRate, params.BonusMultiplier, minStake, maxStake); err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	snapshot, err := s.poolSnapshot()
	if err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, snapshot)
}

func (s *Server) handleStakingStake(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.guardMutation(w, r, req) {
		return
	}
	var params stakingStakeParams
	if err := unmarshalSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	vesting := staking.NoVesting()
	if params.VestingPeriods > 0 {
		vesting = staking.VestOver(params.VestingPeriods)
	}
	if err := s.node.Stake(caller, amount, params.LockPeriod, vesting); err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	position, err := s.node.StakingPosition(caller)
	if err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, positionResultFrom(position))
}

func (s *Server) handleStakingUnstake(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.guardMutation(w, r, req) {
		return
	}
	var params stakingCallerParams
	if err := unmarshalSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	rewards, err := s.node.Unstake(caller)
	if err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	balance, err := s.node.GetBalance(caller)
	if err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, unstakeResult{Rewards: formatBig(rewards), Balance: formatBig(balance)})
}

func (s *Server) handleStakingClaimRewards(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.guardMutation(w, r, req) {
		return
	}
	var params stakingCallerParams
	if err := unmarshalSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	claimed, err := s.node.ClaimRewards(caller)
	if err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	balance, err := s.node.GetBalance(caller)
	if err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimRewardsResult{Claimed: formatBig(claimed), Balance: formatBig(balance)})
}

func (s *Server) handleStakingGetPosition(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	owner, err := parseAddressParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	position, err := s.node.StakingPosition(owner)
	if err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, positionResultFrom(position))
}

func (s *Server) handleStakingGetPoolInfo(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	snapshot, err := s.poolSnapshot()
	if err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, snapshot)
}

func (s *Server) handleStakingGetPendingRewards(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	owner, err := parseAddressParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	pending, err := s.node.PendingRewards(owner)
	if err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, pendingRewardsResultFrom(pending))
}

func (s *Server) handleStakingGetLockPeriods(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	periods := s.node.LockPeriods()
	result := make([]lockPeriodInfo, 0, len(periods))
	for _, period := range periods {
		result = append(result, lockPeriodInfo{
			Seconds:    period,
			Multiplier: staking.MultiplierForLockPeriod(period),
		})
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleStakingUpdatePool(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.guardMutation(w, r, req) {
		return
	}
	var params stakingUpdatePoolParams
	if err := unmarshalSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	var rewardRate *big.Int
	if params.RewardRate != nil {
		rewardRate, err = parseBigInt("rewardRate", *params.RewardRate)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	if err := s.node.UpdateStakingPool(caller, rewardRate, params.BonusMultiplier); err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	snapshot, err := s.poolSnapshot()
	if err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, snapshot)
}

func (s *Server) handleStakingSetEmergencyMode(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.guardMutation(w, r, req) {
		return
	}
	var params stakingEmergencyParams
	if err := unmarshalSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := decodeBech32(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := s.node.SetEmergencyMode(caller, params.Enabled); err != nil {
		writeStakingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, emergencyModeResult{EmergencyMode: params.Enabled})
}
