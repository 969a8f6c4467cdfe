package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"

	"stakeledger/crypto"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("STAKELEDGER_RPC_TOKEN")

func main() {
	args := os.Args[1:]
	var err error
	rpcEndpoint = defaultRPCEndpoint()
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		generateKey()
	case "address":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a key file.")
			printUsage()
			return
		}
		showAddress(args[1])
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		getBalance(args[1])
	case "send":
		if len(args) < 4 {
			fmt.Println("Error: Please provide a recipient, an amount, and a key file.")
			printUsage()
			return
		}
		sendTokens(args[1], args[2], args[3])
	case "staking":
		code := runStakingCommand(args[1:], os.Stdout, os.Stderr)
		if code != 0 {
			os.Exit(code)
		}
		return
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func generateKey() {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}

	fileName := "wallet.key"
	if err := os.WriteFile(fileName, key.Bytes(), 0600); err != nil {
		panic(fmt.Sprintf("Failed to save key to %s: %v", fileName, err))
	}

	fmt.Printf("Generated new key and saved to %s\n", fileName)
	fmt.Printf("Your address is: %s\n", key.PubKey().Address().String())
	fmt.Println("Store this file securely. Mutating commands derive the caller address from it.")
}

func showAddress(keyFile string) {
	privKey, err := loadPrivateKey(keyFile)
	if err != nil {
		fmt.Printf("Error loading private key: %v\n", err)
		return
	}
	fmt.Println(privKey.PubKey().Address().String())
}

func getBalance(addr string) {
	result, _, rpcErr, err := callRPC("ledger_getBalance", []interface{}{strings.TrimSpace(addr)}, false)
	if err != nil {
		fmt.Printf("Error fetching balance: %v\n", err)
		return
	}
	if rpcErr != nil {
		fmt.Printf("Error from node: %s\n", rpcErr.Message)
		return
	}

	var account balanceResponse
	if err := json.Unmarshal(result, &account); err != nil {
		fmt.Println("Failed to decode response from node.")
		return
	}
	fmt.Printf("Balance for: %s\n", account.Address)
	fmt.Printf("  Tokens: %s\n", account.Balance)
}

func sendTokens(to, amount, keyFile string) {
	privKey, err := loadPrivateKey(keyFile)
	if err != nil {
		fmt.Printf("Error loading private key: %v\n", err)
		return
	}
	trimmedAmount := strings.TrimSpace(amount)
	if value, ok := new(big.Int).SetString(trimmedAmount, 10); !ok || value.Sign() <= 0 {
		fmt.Println("Error: Invalid amount.")
		return
	}

	params := map[string]string{
		"from":   privKey.PubKey().Address().String(),
		"to":     strings.TrimSpace(to),
		"amount": trimmedAmount,
	}
	result, _, rpcErr, err := callRPC("ledger_transfer", []interface{}{params}, true)
	if err != nil {
		fmt.Printf("Error sending transfer: %v\n", err)
		return
	}
	if rpcErr != nil {
		fmt.Printf("Error from node: %s\n", rpcErr.Message)
		return
	}

	var moved transferResponse
	if err := json.Unmarshal(result, &moved); err != nil {
		fmt.Println("Failed to decode response from node.")
		return
	}
	fmt.Printf("Sent %s tokens to %s.\n", moved.Amount, moved.To)
	fmt.Printf("Remaining balance: %s\n", moved.Balance)
}

// --- RPC HELPER FUNCTIONS ---

type balanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type transferResponse struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
	Balance string `json:"balance"`
}

func callRPC(method string, params []interface{}, requireAuth bool) (json.RawMessage, int, *rpcError, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		payload["params"] = params
	} else {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, nil, err
	}
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, resp.StatusCode, nil, fmt.Errorf("failed to decode RPC response: %w", err)
	}
	return rpcResp.Result, resp.StatusCode, rpcResp.Error, nil
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if requireAuth {
		if rpcAuthToken == "" {
			return nil, fmt.Errorf("privileged RPC call requires STAKELEDGER_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

func loadPrivateKey(path string) (*crypto.PrivateKey, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("private key file %s not found. run ./stakectl generate-key first", path)
		}
		return nil, fmt.Errorf("failed to read private key file %s: %w", path, err)
	}
	if len(keyBytes) == 0 {
		return nil, fmt.Errorf("private key file %s is empty. run ./stakectl generate-key first", path)
	}
	privKey, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key in %s: %w", path, err)
	}
	return privKey, nil
}

func printUsage() {
	fmt.Println("Usage: stakectl <command> [arguments]")
	fmt.Println()
	fmt.Println("Mutating commands require a locally generated signing key and authenticate with")
	fmt.Println("the STAKELEDGER_RPC_TOKEN bearer token.")
	fmt.Println("Commands:")
	fmt.Println("  generate-key                      - Generates a new key and saves to wallet.key")
	fmt.Println("  address <key_file>                - Prints the address derived from a key file")
	fmt.Println("  balance <address>                 - Checks the token balance of an address")
	fmt.Println("  send <to> <amount> <key_file>     - Transfers tokens to another address")
	fmt.Println("  staking                           - Staking pool and position subcommands")
	fmt.Println()
	fmt.Println("Global flags:")
	fmt.Println("  --rpc <url>                       - Overrides the RPC endpoint (default http://localhost:8080)")
}
