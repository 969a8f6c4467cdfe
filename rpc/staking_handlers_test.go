package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"stakeledger/native/staking"
)

// rpcCall builds a full envelope around a single parameter object so the
// request travels the same path a client would use.
func rpcCall(t testing.TB, method string, params ...interface{}) []byte {
	t.Helper()
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		raw = append(raw, marshalParam(t, p))
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"method":  method,
		"params":  raw,
		"id":      1,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return body
}

func TestStakingLifecycleOverRPC(t *testing.T) {
	node := newTestNode(t)
	srv := newTestServer(t, node)
	admin := testAddr(0xAD)
	user := testAddr(0x11)
	fundAccounts(t, node, map[string]string{bech(user): "10000000"})

	// Reward rate 1 keeps accrual at zero for any test shorter than a
	// thousand seconds, so balances stay exact without a stubbed clock.
	rec := postRPC(t, srv, rpcCall(t, "staking_initialize", stakingInitializeParams{
		Caller:          bech(admin),
		Token:           "stk",
		RewardRate:      "1",
		BonusMultiplier: 150,
		MinStake:        "1000",
		MaxStake:        "1000000000",
	}), true)
	result, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("initialize: %+v", rpcErr)
	}
	var pool poolInfoResult
	unmarshalResult(t, result, &pool)
	if pool.Token != "STK" {
		t.Fatalf("token = %s, want STK", pool.Token)
	}
	if pool.TotalStaked != "0" || pool.EmergencyWithdrawalFeeBps != 500 || pool.EmergencyMode {
		t.Fatalf("unexpected pool snapshot: %+v", pool)
	}
	if pool.Admin != bech(admin) {
		t.Fatalf("admin = %s, want %s", pool.Admin, bech(admin))
	}

	rec = postRPC(t, srv, rpcCall(t, "staking_stake", stakingStakeParams{
		Caller:     bech(user),
		Amount:     "1000000",
		LockPeriod: staking.LockPeriod30Days,
	}), true)
	result, rpcErr = decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("stake: %+v", rpcErr)
	}
	var position positionResult
	unmarshalResult(t, result, &position)
	if position.Owner != bech(user) || position.Amount != "1000000" {
		t.Fatalf("unexpected position: %+v", position)
	}
	if position.RewardMultiplier != staking.Multiplier30Days {
		t.Fatalf("multiplier = %d, want %d", position.RewardMultiplier, staking.Multiplier30Days)
	}
	if position.StartTime == 0 || position.UnlockTime != position.StartTime+staking.LockPeriod30Days {
		t.Fatalf("unexpected schedule: start=%d unlock=%d", position.StartTime, position.UnlockTime)
	}
	if position.HasVesting {
		t.Fatalf("expected no vesting schedule")
	}

	rec = postRPC(t, srv, rpcCall(t, "staking_getPoolInfo"), false)
	result, rpcErr = decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("getPoolInfo: %+v", rpcErr)
	}
	unmarshalResult(t, result, &pool)
	if pool.TotalStaked != "1000000" {
		t.Fatalf("total staked = %s, want 1000000", pool.TotalStaked)
	}

	rec = postRPC(t, srv, rpcCall(t, "ledger_getBalance", bech(user)), false)
	result, rpcErr = decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("getBalance: %+v", rpcErr)
	}
	var balance balanceResult
	unmarshalResult(t, result, &balance)
	if balance.Balance != "9000000" {
		t.Fatalf("balance = %s, want 9000000", balance.Balance)
	}

	rec = postRPC(t, srv, rpcCall(t, "staking_getPendingRewards", bech(user)), false)
	result, rpcErr = decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("getPendingRewards: %+v", rpcErr)
	}
	var pending pendingRewardsResult
	unmarshalResult(t, result, &pending)
	if pending.ClaimableAmount != "0" || pending.TotalRewards != "0" {
		t.Fatalf("unexpected pending rewards: %+v", pending)
	}

	rec = postRPC(t, srv, rpcCall(t, "staking_claimRewards", stakingCallerParams{Caller: bech(user)}), true)
	result, rpcErr = decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("claimRewards: %+v", rpcErr)
	}
	var claim claimRewardsResult
	unmarshalResult(t, result, &claim)
	if claim.Claimed != "0" || claim.Balance != "9000000" {
		t.Fatalf("unexpected claim result: %+v", claim)
	}

	rec = postRPC(t, srv, rpcCall(t, "staking_unstake", stakingCallerParams{Caller: bech(user)}), true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("locked unstake status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	_, rpcErr = decodeRPCResponse(t, rec)
	if rpcErr == nil || rpcErr.Code != codeInvalidParams {
		t.Fatalf("expected lock rejection, got %+v", rpcErr)
	}

	rec = postRPC(t, srv, rpcCall(t, "staking_setEmergencyMode", stakingEmergencyParams{Caller: bech(admin), Enabled: true}), true)
	result, rpcErr = decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("setEmergencyMode: %+v", rpcErr)
	}
	var emergency emergencyModeResult
	unmarshalResult(t, result, &emergency)
	if !emergency.EmergencyMode {
		t.Fatalf("expected emergency mode enabled")
	}

	rec = postRPC(t, srv, rpcCall(t, "staking_unstake", stakingCallerParams{Caller: bech(user)}), true)
	result, rpcErr = decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("emergency unstake: %+v", rpcErr)
	}
	var exit unstakeResult
	unmarshalResult(t, result, &exit)
	if exit.Rewards != "0" || exit.Balance != "10000000" {
		t.Fatalf("unexpected unstake result: %+v", exit)
	}

	rec = postRPC(t, srv, rpcCall(t, "staking_getPosition", bech(user)), false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("closed position status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	_, rpcErr = decodeRPCResponse(t, rec)
	if rpcErr == nil || rpcErr.Code != codeServerError {
		t.Fatalf("expected missing position error, got %+v", rpcErr)
	}
}

func TestStakeWithVestingOverRPC(t *testing.T) {
	node := newTestNode(t)
	srv := newTestServer(t, node)
	admin := testAddr(0xAD)
	user := testAddr(0x22)
	fundAccounts(t, node, map[string]string{bech(user): "5000000"})

	rec := postRPC(t, srv, rpcCall(t, "staking_initialize", stakingInitializeParams{
		Caller:          bech(admin),
		Token:           "STK",
		RewardRate:      "1",
		BonusMultiplier: 100,
		MinStake:        "1000",
		MaxStake:        "1000000000",
	}), true)
	if _, rpcErr := decodeRPCResponse(t, rec); rpcErr != nil {
		t.Fatalf("initialize: %+v", rpcErr)
	}

	rec = postRPC(t, srv, rpcCall(t, "staking_stake", stakingStakeParams{
		Caller:         bech(user),
		Amount:         "2000000",
		LockPeriod:     staking.LockPeriod90Days,
		VestingPeriods: 10,
	}), true)
	result, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("stake: %+v", rpcErr)
	}
	var position positionResult
	unmarshalResult(t, result, &position)
	if !position.HasVesting {
		t.Fatalf("expected vesting schedule")
	}
	if position.VestingTotalPeriods != 10 {
		t.Fatalf("vesting periods = %d, want 10", position.VestingTotalPeriods)
	}
	if position.VestingPeriodDuration != staking.LockPeriod90Days/10 {
		t.Fatalf("period duration = %d, want %d", position.VestingPeriodDuration, staking.LockPeriod90Days/10)
	}
	if position.VestingCliffBps != staking.VestingCliffBps {
		t.Fatalf("cliff = %d, want %d", position.VestingCliffBps, staking.VestingCliffBps)
	}
	if position.RewardMultiplier != staking.Multiplier90Days {
		t.Fatalf("multiplier = %d, want %d", position.RewardMultiplier, staking.Multiplier90Days)
	}
}

func TestStakeRejectsBadParams(t *testing.T) {
	node := newTestNode(t)
	srv := newTestServer(t, node)
	admin := testAddr(0xAD)
	user := testAddr(0x33)
	fundAccounts(t, node, map[string]string{bech(user): "5000000"})

	rec := postRPC(t, srv, rpcCall(t, "staking_initialize", stakingInitializeParams{
		Caller:          bech(admin),
		Token:           "STK",
		RewardRate:      "1",
		BonusMultiplier: 100,
		MinStake:        "1000",
		MaxStake:        "1000000000",
	}), true)
	if _, rpcErr := decodeRPCResponse(t, rec); rpcErr != nil {
		t.Fatalf("initialize: %+v", rpcErr)
	}

	cases := []struct {
		name string
		body []byte
	}{
		{name: "no params", body: rpcCall(t, "staking_stake")},
		{name: "two params", body: rpcCall(t, "staking_stake", stakingCallerParams{Caller: bech(user)}, "extra")},
		{name: "malformed object", body: []byte(`{"jsonrpc":"2.0","method":"staking_stake","params":["not-an-object"],"id":1}`)},
		{name: "bad caller", body: rpcCall(t, "staking_stake", stakingStakeParams{Caller: "stk1garbage", Amount: "2000", LockPeriod: staking.LockPeriod30Days})},
		{name: "empty amount", body: rpcCall(t, "staking_stake", stakingStakeParams{Caller: bech(user), LockPeriod: staking.LockPeriod30Days})},
		{name: "zero amount", body: rpcCall(t, "staking_stake", stakingStakeParams{Caller: bech(user), Amount: "0", LockPeriod: staking.LockPeriod30Days})},
		{name: "negative amount", body: rpcCall(t, "staking_stake", stakingStakeParams{Caller: bech(user), Amount: "-5", LockPeriod: staking.LockPeriod30Days})},
		{name: "unknown lock period", body: rpcCall(t, "staking_stake", stakingStakeParams{Caller: bech(user), Amount: "2000", LockPeriod: staking.LockPeriod30Days + 1})},
		{name: "below minimum", body: rpcCall(t, "staking_stake", stakingStakeParams{Caller: bech(user), Amount: "999", LockPeriod: staking.LockPeriod30Days})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postRPC(t, srv, tc.body, true)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusBadRequest, rec.Body)
			}
			_, rpcErr := decodeRPCResponse(t, rec)
			if rpcErr == nil || rpcErr.Code != codeInvalidParams {
				t.Fatalf("expected invalid params, got %+v", rpcErr)
			}
		})
	}
}

func TestUpdatePoolRequiresAdmin(t *testing.T) {
	node := newTestNode(t)
	srv := newTestServer(t, node)
	admin := testAddr(0xAD)
	intruder := testAddr(0x66)

	rec := postRPC(t, srv, rpcCall(t, "staking_initialize", stakingInitializeParams{
		Caller:          bech(admin),
		Token:           "STK",
		RewardRate:      "1000",
		BonusMultiplier: 100,
		MinStake:        "1000",
		MaxStake:        "1000000000",
	}), true)
	if _, rpcErr := decodeRPCResponse(t, rec); rpcErr != nil {
		t.Fatalf("initialize: %+v", rpcErr)
	}

	rate := "2000"
	rec = postRPC(t, srv, rpcCall(t, "staking_updatePool", stakingUpdatePoolParams{Caller: bech(intruder), RewardRate: &rate}), true)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil || rpcErr.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", rpcErr)
	}

	mult := uint32(250)
	rec = postRPC(t, srv, rpcCall(t, "staking_updatePool", stakingUpdatePoolParams{Caller: bech(admin), RewardRate: &rate, BonusMultiplier: &mult}), true)
	result, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("updatePool: %+v", rpcErr)
	}
	var pool poolInfoResult
	unmarshalResult(t, result, &pool)
	if pool.RewardRate != "2000" || pool.BonusMultiplier != 250 {
		t.Fatalf("unexpected pool after update: %+v", pool)
	}
}

func TestGetLockPeriods(t *testing.T) {
	srv := newTestServer(t, newTestNode(t))

	rec := postRPC(t, srv, rpcCall(t, "staking_getLockPeriods"), false)
	result, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("getLockPeriods: %+v", rpcErr)
	}
	var tiers []lockPeriodInfo
	unmarshalResult(t, result, &tiers)

	want := []lockPeriodInfo{
		{Seconds: staking.LockPeriod30Days, Multiplier: 100},
		{Seconds: staking.LockPeriod90Days, Multiplier: 150},
		{Seconds: staking.LockPeriod180Days, Multiplier: 200},
		{Seconds: staking.LockPeriod365Days, Multiplier: 300},
	}
	if len(tiers) != len(want) {
		t.Fatalf("tier count = %d, want %d", len(tiers), len(want))
	}
	for i, tier := range tiers {
		if tier != want[i] {
			t.Fatalf("tier %d = %+v, want %+v", i, tier, want[i])
		}
	}
}

func TestLedgerTransferOverRPC(t *testing.T) {
	node := newTestNode(t)
	srv := newTestServer(t, node)
	from := testAddr(0x44)
	to := testAddr(0x55)
	fundAccounts(t, node, map[string]string{bech(from): "1000"})

	rec := postRPC(t, srv, rpcCall(t, "ledger_transfer", ledgerTransferParams{From: bech(from), To: bech(to), Amount: "250"}), true)
	result, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("transfer: %+v", rpcErr)
	}
	var moved transferResult
	unmarshalResult(t, result, &moved)
	if moved.Balance != "750" {
		t.Fatalf("sender balance = %s, want 750", moved.Balance)
	}

	rec = postRPC(t, srv, rpcCall(t, "ledger_getBalance", bech(to)), false)
	result, rpcErr = decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("getBalance: %+v", rpcErr)
	}
	var balance balanceResult
	unmarshalResult(t, result, &balance)
	if balance.Balance != "250" {
		t.Fatalf("recipient balance = %s, want 250", balance.Balance)
	}

	rec = postRPC(t, srv, rpcCall(t, "ledger_transfer", ledgerTransferParams{From: bech(from), To: bech(to), Amount: "100000"}), true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overdraft status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	_, rpcErr = decodeRPCResponse(t, rec)
	if rpcErr == nil || rpcErr.Code != codeInvalidParams {
		t.Fatalf("expected overdraft rejection, got %+v", rpcErr)
	}
}

func TestQueriesBeforeInitialization(t *testing.T) {
	srv := newTestServer(t, newTestNode(t))

	for _, method := range []string{"staking_getPoolInfo", "staking_getPosition", "staking_getPendingRewards"} {
		t.Run(method, func(t *testing.T) {
			var body []byte
			switch method {
			case "staking_getPoolInfo":
				body = rpcCall(t, method)
			default:
				body = rpcCall(t, method, bech(testAddr(0x77)))
			}
			rec := postRPC(t, srv, body, false)
			if rec.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
			}
			_, rpcErr := decodeRPCResponse(t, rec)
			if rpcErr == nil {
				t.Fatalf("expected error for uninitialized pool")
			}
			if rpcErr.Code != codeServerError {
				t.Fatalf("code = %d, want %d", rpcErr.Code, codeServerError)
			}
		})
	}
}

func TestReinitializeRejected(t *testing.T) {
	node := newTestNode(t)
	srv := newTestServer(t, node)
	admin := testAddr(0xAD)

	init := func() *RPCError {
		rec := postRPC(t, srv, rpcCall(t, "staking_initialize", stakingInitializeParams{
			Caller:          bech(admin),
			Token:           "STK",
			RewardRate:      "1",
			BonusMultiplier: 100,
			MinStake:        "1000",
			MaxStake:        "1000000000",
		}), true)
		_, rpcErr := decodeRPCResponse(t, rec)
		return rpcErr
	}
	if rpcErr := init(); rpcErr != nil {
		t.Fatalf("first initialize: %+v", rpcErr)
	}
	rpcErr := init()
	if rpcErr == nil {
		t.Fatalf("expected second initialize to fail")
	}
	if rpcErr.Code != codeServerError {
		t.Fatalf("code = %d, want %d", rpcErr.Code, codeServerError)
	}
	if rpcErr.Message != fmt.Sprintf("%v", staking.ErrNotInitialized) {
		t.Fatalf("message = %q, want %q", rpcErr.Message, staking.ErrNotInitialized)
	}
}
