package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"stakeledger/native/staking"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var stakingRPCCall = callRPC

func runStakingCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, stakingUsage())
		return 1
	}

	switch args[0] {
	case "pool":
		return runStakingPool(args[1:], stdout, stderr)
	case "position":
		return runStakingPosition(args[1:], stdout, stderr)
	case "pending":
		return runStakingPending(args[1:], stdout, stderr)
	case "lock-periods":
		return runStakingLockPeriods(args[1:], stdout, stderr)
	case "stake":
		return runStakingStake(args[1:], stdout, stderr)
	case "unstake":
		return runStakingUnstake(args[1:], stdout, stderr)
	case "claim":
		return runStakingClaim(args[1:], stdout, stderr)
	case "init":
		return runStakingInit(args[1:], stdout, stderr)
	case "update":
		return runStakingUpdate(args[1:], stdout, stderr)
	case "emergency":
		return runStakingEmergency(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown staking command: %s\n", args[0])
		fmt.Fprintln(stderr, stakingUsage())
		return 1
	}
}

func runStakingPool(args []string, stdout, stderr io.Writer) int {
	if len(args) != 0 {
		fmt.Fprintln(stderr, "Usage: stakectl staking pool")
		return 1
	}

	result, _, rpcErr, err := stakingRPCCall("staking_getPoolInfo", nil, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}

	var pool poolResponse
	if err := json.Unmarshal(result, &pool); err != nil {
		fmt.Fprintf(stderr, "Failed to decode response: %v\n", err)
		return 1
	}
	printPool(stdout, &pool)
	return 0
}

func runStakingPosition(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: stakectl staking position <address>")
		return 1
	}
	addr := strings.TrimSpace(args[0])
	if addr == "" {
		fmt.Fprintln(stderr, "Error: address is required")
		return 1
	}

	result, _, rpcErr, err := stakingRPCCall("staking_getPosition", []interface{}{addr}, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}

	var position positionResponse
	if err := json.Unmarshal(result, &position); err != nil {
		fmt.Fprintf(stderr, "Failed to decode response: %v\n", err)
		return 1
	}
	printPosition(stdout, &position)
	return 0
}

func runStakingPending(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: stakectl staking pending <address>")
		return 1
	}
	addr := strings.TrimSpace(args[0])
	if addr == "" {
		fmt.Fprintln(stderr, "Error: address is required")
		return 1
	}

	result, _, rpcErr, err := stakingRPCCall("staking_getPendingRewards", []interface{}{addr}, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}

	var pending pendingResponse
	if err := json.Unmarshal(result, &pending); err != nil {
		fmt.Fprintf(stderr, "Failed to decode response: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Pending rewards for %s\n", addr)
	fmt.Fprintf(stdout, "  Base:      %s\n", pending.BaseRewards)
	fmt.Fprintf(stdout, "  Bonus:     %s\n", pending.BonusRewards)
	fmt.Fprintf(stdout, "  Total:     %s\n", pending.TotalRewards)
	fmt.Fprintf(stdout, "  Vested:    %s\n", pending.VestingAmount)
	fmt.Fprintf(stdout, "  Claimable: %s\n", pending.ClaimableAmount)
	return 0
}

func runStakingLockPeriods(args []string, stdout, stderr io.Writer) int {
	if len(args) != 0 {
		fmt.Fprintln(stderr, "Usage: stakectl staking lock-periods")
		return 1
	}

	result, _, rpcErr, err := stakingRPCCall("staking_getLockPeriods", nil, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}

	var tiers []lockPeriodResponse
	if err := json.Unmarshal(result, &tiers); err != nil {
		fmt.Fprintf(stderr, "Failed to decode response: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Supported lock periods:")
	for _, tier := range tiers {
		fmt.Fprintf(stdout, "  %d seconds (%d days) - multiplier %d%%\n", tier.Seconds, tier.Seconds/86_400, tier.Multiplier)
	}
	return 0
}

func runStakingStake(args []string, stdout, stderr io.Writer) int {
	if len(args) < 3 || len(args) > 4 {
		fmt.Fprintln(stderr, "Usage: stakectl staking stake <amount> <lock_period> <key_file> [vesting_periods]")
		return 1
	}
	amount := strings.TrimSpace(args[0])
	lockPeriod, err := parseLockPeriod(args[1])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	privKey, err := loadPrivateKey(args[2])
	if err != nil {
		fmt.Fprintf(stderr, "Error loading private key: %v\n", err)
		return 1
	}

	params := map[string]interface{}{
		"caller":     privKey.PubKey().Address().String(),
		"amount":     amount,
		"lockPeriod": lockPeriod,
	}
	if len(args) == 4 {
		periods, err := strconv.ParseUint(strings.TrimSpace(args[3]), 10, 32)
		if err != nil || periods == 0 {
			fmt.Fprintln(stderr, "Error: vesting periods must be a positive integer")
			return 1
		}
		params["vestingPeriods"] = uint32(periods)
	}

	result, _, rpcErr, err := stakingRPCCall("staking_stake", []interface{}{params}, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}

	var position positionResponse
	if err := json.Unmarshal(result, &position); err != nil {
		fmt.Fprintf(stderr, "Failed to decode response: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Staked %s tokens.\n", position.Amount)
	printPosition(stdout, &position)
	return 0
}

func runStakingUnstake(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: stakectl staking unstake <key_file>")
		return 1
	}
	privKey, err := loadPrivateKey(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error loading private key: %v\n", err)
		return 1
	}

	params := map[string]string{"caller": privKey.PubKey().Address().String()}
	result, _, rpcErr, err := stakingRPCCall("staking_unstake", []interface{}{params}, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}

	var exit unstakeResponse
	if err := json.Unmarshal(result, &exit); err != nil {
		fmt.Fprintf(stderr, "Failed to decode response: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Unstaked. Rewards paid: %s\n", exit.Rewards)
	fmt.Fprintf(stdout, "Balance: %s\n", exit.Balance)
	return 0
}

func runStakingClaim(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: stakectl staking claim <key_file>")
		return 1
	}
	privKey, err := loadPrivateKey(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error loading private key: %v\n", err)
		return 1
	}

	params := map[string]string{"caller": privKey.PubKey().Address().String()}
	result, _, rpcErr, err := stakingRPCCall("staking_claimRewards", []interface{}{params}, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}

	var claim claimResponse
	if err := json.Unmarshal(result, &claim); err != nil {
		fmt.Fprintf(stderr, "Failed to decode response: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Claimed %s tokens.\n", claim.Claimed)
	fmt.Fprintf(stdout, "Balance: %s\n", claim.Balance)
	return 0
}

func runStakingInit(args []string, stdout, stderr io.Writer) int {
	if len(args) != 6 {
		fmt.Fprintln(stderr, "Usage: stakectl staking init <token> <reward_rate> <bonus_multiplier> <min_stake> <max_stake> <key_file>")
		return 1
	}
	multiplier, err := strconv.ParseUint(strings.TrimSpace(args[2]), 10, 32)
	if err != nil {
		fmt.Fprintln(stderr, "Error: bonus multiplier must be an unsigned integer")
		return 1
	}
	privKey, err := loadPrivateKey(args[5])
	if err != nil {
		fmt.Fprintf(stderr, "Error loading private key: %v\n", err)
		return 1
	}

	params := map[string]interface{}{
		"caller":          privKey.PubKey().Address().String(),
		"token":           strings.TrimSpace(args[0]),
		"rewardRate":      strings.TrimSpace(args[1]),
		"bonusMultiplier": uint32(multiplier),
		"minStake":        strings.TrimSpace(args[3]),
		"maxStake":        strings.TrimSpace(args[4]),
	}
	result, _, rpcErr, err := stakingRPCCall("staking_initialize", []interface{}{params}, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}

	var pool poolResponse
	if err := json.Unmarshal(result, &pool); err != nil {
		fmt.Fprintf(stderr, "Failed to decode response: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "Staking pool initialised.")
	printPool(stdout, &pool)
	return 0
}

func runStakingUpdate(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "Usage: stakectl staking update <key_file> [--rate <value>] [--multiplier <value>]")
		return 1
	}
	privKey, err := loadPrivateKey(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error loading private key: %v\n", err)
		return 1
	}

	params := map[string]interface{}{"caller": privKey.PubKey().Address().String()}
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--rate":
			if i+1 >= len(rest) {
				fmt.Fprintln(stderr, "Error: missing value for --rate")
				return 1
			}
			params["rewardRate"] = strings.TrimSpace(rest[i+1])
			i++
		case "--multiplier":
			if i+1 >= len(rest) {
				fmt.Fprintln(stderr, "Error: missing value for --multiplier")
				return 1
			}
			multiplier, err := strconv.ParseUint(strings.TrimSpace(rest[i+1]), 10, 32)
			if err != nil {
				fmt.Fprintln(stderr, "Error: multiplier must be an unsigned integer")
				return 1
			}
			params["bonusMultiplier"] = uint32(multiplier)
			i++
		default:
			fmt.Fprintf(stderr, "Unknown flag: %s\n", rest[i])
			return 1
		}
	}
	if len(params) == 1 {
		fmt.Fprintln(stderr, "Error: provide --rate and/or --multiplier")
		return 1
	}

	result, _, rpcErr, err := stakingRPCCall("staking_updatePool", []interface{}{params}, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}

	var pool poolResponse
	if err := json.Unmarshal(result, &pool); err != nil {
		fmt.Fprintf(stderr, "Failed to decode response: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "Staking pool updated.")
	printPool(stdout, &pool)
	return 0
}

func runStakingEmergency(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Usage: stakectl staking emergency <on|off> <key_file>")
		return 1
	}
	var enabled bool
	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		fmt.Fprintln(stderr, "Error: first argument must be on or off")
		return 1
	}
	privKey, err := loadPrivateKey(args[1])
	if err != nil {
		fmt.Fprintf(stderr, "Error loading private key: %v\n", err)
		return 1
	}

	params := map[string]interface{}{
		"caller":  privKey.PubKey().Address().String(),
		"enabled": enabled,
	}
	result, _, rpcErr, err := stakingRPCCall("staking_setEmergencyMode", []interface{}{params}, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}

	var mode emergencyResponse
	if err := json.Unmarshal(result, &mode); err != nil {
		fmt.Fprintf(stderr, "Failed to decode response: %v\n", err)
		return 1
	}
	if mode.EmergencyMode {
		fmt.Fprintln(stdout, "Emergency mode enabled. Staking is frozen and locks are waived for withdrawals.")
	} else {
		fmt.Fprintln(stdout, "Emergency mode disabled.")
	}
	return 0
}

type poolResponse struct {
	Token                     string `json:"token"`
	TotalStaked               string `json:"totalStaked"`
	RewardRate                string `json:"rewardRate"`
	BonusMultiplier           uint32 `json:"bonusMultiplier"`
	MinStake                  string `json:"minStake"`
	MaxStake                  string `json:"maxStake"`
	EmergencyWithdrawalFeeBps uint32 `json:"emergencyWithdrawalFeeBps"`
	EmergencyMode             bool   `json:"emergencyMode"`
	Admin                     string `json:"admin"`
	VaultAddress              string `json:"vaultAddress"`
}

type positionResponse struct {
	Owner                 string `json:"owner"`
	Amount                string `json:"amount"`
	StartTime             uint64 `json:"startTime"`
	LastRewardTime        uint64 `json:"lastRewardTime"`
	RewardMultiplier      uint32 `json:"rewardMultiplier"`
	LockPeriod            uint64 `json:"lockPeriod"`
	UnlockTime            uint64 `json:"unlockTime"`
	HasVesting            bool   `json:"hasVesting"`
	VestingTotalPeriods   uint32 `json:"vestingTotalPeriods"`
	VestingCurrentPeriod  uint32 `json:"vestingCurrentPeriod"`
	VestingPeriodDuration uint64 `json:"vestingPeriodDuration"`
	VestingCliffBps       uint32 `json:"vestingCliffBps"`
}

type pendingResponse struct {
	BaseRewards     string `json:"baseRewards"`
	BonusRewards    string `json:"bonusRewards"`
	TotalRewards    string `json:"totalRewards"`
	VestingAmount   string `json:"vestingAmount"`
	ClaimableAmount string `json:"claimableAmount"`
}

type claimResponse struct {
	Claimed string `json:"claimed"`
	Balance string `json:"balance"`
}

type unstakeResponse struct {
	Rewards string `json:"rewards"`
	Balance string `json:"balance"`
}

type lockPeriodResponse struct {
	Seconds    uint64 `json:"seconds"`
	Multiplier uint32 `json:"multiplier"`
}

type emergencyResponse struct {
	EmergencyMode bool `json:"emergencyMode"`
}

func printPool(w io.Writer, pool *poolResponse) {
	fmt.Fprintf(w, "Staking pool %s\n", pool.Token)
	fmt.Fprintf(w, "  Total staked:    %s\n", pool.TotalStaked)
	fmt.Fprintf(w, "  Reward rate:     %s\n", pool.RewardRate)
	fmt.Fprintf(w, "  Bonus mult:      %d\n", pool.BonusMultiplier)
	fmt.Fprintf(w, "  Stake bounds:    %s .. %s\n", pool.MinStake, pool.MaxStake)
	fmt.Fprintf(w, "  Withdrawal fee:  %d bps\n", pool.EmergencyWithdrawalFeeBps)
	fmt.Fprintf(w, "  Emergency mode:  %t\n", pool.EmergencyMode)
	fmt.Fprintf(w, "  Admin:           %s\n", pool.Admin)
	fmt.Fprintf(w, "  Vault:           %s\n", pool.VaultAddress)
}

func printPosition(w io.Writer, position *positionResponse) {
	fmt.Fprintf(w, "Position for %s\n", position.Owner)
	fmt.Fprintf(w, "  Amount:       %s\n", position.Amount)
	fmt.Fprintf(w, "  Multiplier:   %d%%\n", position.RewardMultiplier)
	fmt.Fprintf(w, "  Staked at:    %s\n", formatTimestamp(position.StartTime))
	fmt.Fprintf(w, "  Unlocks at:   %s\n", formatTimestamp(position.UnlockTime))
	if position.HasVesting {
		fmt.Fprintf(w, "  Vesting:      %d periods of %d seconds, %d bps cliff\n",
			position.VestingTotalPeriods, position.VestingPeriodDuration, position.VestingCliffBps)
	}
}

func parseLockPeriod(raw string) (uint64, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "30d":
		return staking.LockPeriod30Days, nil
	case "90d":
		return staking.LockPeriod90Days, nil
	case "180d":
		return staking.LockPeriod180Days, nil
	case "365d":
		return staking.LockPeriod365Days, nil
	}
	seconds, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("lock period must be 30d, 90d, 180d, 365d, or a number of seconds")
	}
	return seconds, nil
}

func formatTimestamp(ts uint64) string {
	if ts == 0 {
		return "unknown"
	}
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}

func handleRPCError(w io.Writer, err *rpcError) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	return 1
}

func handleRPCCallError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC call failed: %v\n", err)
	return 1
}

func stakingUsage() string {
	return strings.TrimSpace(`Usage:
  stakectl staking <command>

Commands:
  pool                                         Show the staking pool configuration
  position <address>                           Show the staking position for an address
  pending <address>                            Show pending rewards for an address
  lock-periods                                 List supported lock periods and multipliers
  stake <amount> <lock_period> <key_file> [vesting_periods]
                                               Stake tokens with an optional vesting schedule
  unstake <key_file>                           Withdraw principal and rewards after lock expiry
  claim <key_file>                             Claim vested rewards
  init <token> <reward_rate> <bonus_multiplier> <min_stake> <max_stake> <key_file>
                                               Initialise the staking pool (admin)
  update <key_file> [--rate <value>] [--multiplier <value>]
                                               Update pool parameters (admin)
  emergency <on|off> <key_file>                Toggle emergency mode (admin)`)
}
