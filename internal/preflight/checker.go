// Package preflight validates the target chain and deployer account before a
// migration sends any transaction.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
)

// DefaultTimeout bounds all RPC calls of one RunChecks.
const DefaultTimeout = 10 * time.Second

// MainnetChainID gets the higher funding threshold.
const MainnetChainID = 1

// ErrFailed is returned by Response.Err when any check did not pass.
var ErrFailed = errors.New("preflight: checks failed")

// CheckName identifies a check in the results.
type CheckName string

const (
	CheckRPCReachable    CheckName = "rpc_reachable"
	CheckChainIDMatch    CheckName = "chain_id_match"
	CheckDeployerBalance CheckName = "deployer_balance"
)

// Client is the subset of ethclient.Client the checks need.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// DialFunc opens a Client for an RPC URL.
type DialFunc func(ctx context.Context, rpcURL string) (Client, error)

// DialEthclient dials with go-ethereum's ethclient.
func DialEthclient(ctx context.Context, rpcURL string) (Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name    CheckName `json:"name"`
	Passed  bool      `json:"passed"`
	Message string    `json:"message"`
}

// Request describes the chain a migration is about to target.
type Request struct {
	RPCURL   string
	ChainID  uint64
	Deployer common.Address

	// RequiredFundingWei overrides RequiredFunding(ChainID).
	RequiredFundingWei *big.Int
}

// Response lists the checks in the order they ran.
type Response struct {
	OK     bool          `json:"ok"`
	Checks []CheckResult `json:"checks"`
}

func (r *Response) add(name CheckName, passed bool, format string, args ...any) {
	r.Checks = append(r.Checks, CheckResult{Name: name, Passed: passed, Message: fmt.Sprintf(format, args...)})
	r.OK = r.OK && passed
}

// Err returns ErrFailed naming the checks that did not pass, or nil.
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	var failed []string
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, fmt.Sprintf("%s (%s)", c.Name, c.Message))
		}
	}
	return fmt.Errorf("%w: %s", ErrFailed, strings.Join(failed, "; "))
}

// Checker runs the checks against an RPC endpoint.
type Checker struct {
	timeout time.Duration
	dial    DialFunc
}

// NewChecker creates a checker using ethclient and DefaultTimeout.
func NewChecker() *Checker {
	return &Checker{timeout: DefaultTimeout, dial: DialEthclient}
}

// WithTimeout sets the timeout for all RPC calls.
func (c *Checker) WithTimeout(timeout time.Duration) *Checker {
	c.timeout = timeout
	return c
}

// WithDialer replaces the RPC dialer.
func (c *Checker) WithDialer(dial DialFunc) *Checker {
	c.dial = dial
	return c
}

// RunChecks checks reachability, then chain ID and deployer balance. An
// unreachable endpoint stops after the first check. Failed checks are
// reported in the Response; the error is for malformed requests only.
func (c *Checker) RunChecks(ctx context.Context, req *Request) (*Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := &Response{OK: true}

	client, err := c.dial(ctx, req.RPCURL)
	if err == nil {
		// Dialing over HTTP is lazy, so make one call.
		if _, err = client.ChainID(ctx); err != nil {
			client.Close()
		}
	}
	if err != nil {
		resp.add(CheckRPCReachable, false, "RPC %s unreachable: %v", req.RPCURL, err)
		return resp, nil
	}
	defer client.Close()
	resp.add(CheckRPCReachable, true, "connected to %s", req.RPCURL)

	switch chainID, err := client.ChainID(ctx); {
	case err != nil:
		resp.add(CheckChainIDMatch, false, "get chain ID: %v", err)
	case !chainID.IsUint64() || chainID.Uint64() != req.ChainID:
		resp.add(CheckChainIDMatch, false, "expected chain ID %d, got %s", req.ChainID, chainID)
	default:
		resp.add(CheckChainIDMatch, true, "chain ID %d", req.ChainID)
	}

	required := req.RequiredFundingWei
	if required == nil {
		required = RequiredFunding(req.ChainID)
	}
	switch balance, err := client.BalanceAt(ctx, req.Deployer, nil); {
	case err != nil:
		resp.add(CheckDeployerBalance, false, "get balance of %s: %v", req.Deployer.Hex(), err)
	case balance.Cmp(required) < 0:
		resp.add(CheckDeployerBalance, false, "%s has %s ETH, needs %s ETH", req.Deployer.Hex(), formatEther(balance), formatEther(required))
	default:
		resp.add(CheckDeployerBalance, true, "%s has %s ETH", req.Deployer.Hex(), formatEther(balance))
	}

	return resp, nil
}

func validateRequest(req *Request) error {
	switch {
	case req.RPCURL == "":
		return errors.New("rpc_url is required")
	case req.ChainID == 0:
		return errors.New("chain_id is required")
	case req.Deployer == (common.Address{}):
		return errors.New("deployer address is required")
	case req.RequiredFundingWei != nil && req.RequiredFundingWei.Sign() < 0:
		return errors.New("required_funding_wei must not be negative")
	}
	return nil
}

// RequiredFunding is the deployer balance a run needs on chainID: 5 ETH on
// mainnet, 1 ETH elsewhere.
func RequiredFunding(chainID uint64) *big.Int {
	if chainID == MainnetChainID {
		return new(big.Int).Mul(big.NewInt(5), big.NewInt(params.Ether))
	}
	return big.NewInt(params.Ether)
}

func formatEther(wei *big.Int) string {
	return new(big.Rat).SetFrac(wei, big.NewInt(params.Ether)).FloatString(4)
}
