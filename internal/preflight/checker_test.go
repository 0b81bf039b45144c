package preflight

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var deployer = common.HexToAddress("0x1234567890123456789012345678901234567890")

// MockClient is a mock implementation of Client.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	args := m.Called(ctx, account, blockNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockClient) Close() {
	m.Called()
}

func dialTo(client Client) DialFunc {
	return func(context.Context, string) (Client, error) { return client, nil }
}

func TestNewChecker(t *testing.T) {
	checker := NewChecker()
	assert.NotNil(t, checker)
	assert.Equal(t, DefaultTimeout, checker.timeout)
}

func TestChecker_WithTimeout(t *testing.T) {
	checker := NewChecker().WithTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, checker.timeout)
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     *Request
		wantErr string
	}{
		{
			name: "valid request",
			req:  &Request{RPCURL: "http://localhost:8545", ChainID: 1337, Deployer: deployer},
		},
		{
			name:    "missing rpc_url",
			req:     &Request{ChainID: 1337, Deployer: deployer},
			wantErr: "rpc_url is required",
		},
		{
			name:    "missing chain_id",
			req:     &Request{RPCURL: "http://localhost:8545", Deployer: deployer},
			wantErr: "chain_id is required",
		},
		{
			name:    "missing deployer",
			req:     &Request{RPCURL: "http://localhost:8545", ChainID: 1337},
			wantErr: "deployer address is required",
		},
		{
			name: "negative funding override",
			req: &Request{
				RPCURL: "http://localhost:8545", ChainID: 1337, Deployer: deployer,
				RequiredFundingWei: big.NewInt(-1),
			},
			wantErr: "required_funding_wei must not be negative",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateRequest(tc.req)
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestRequiredFunding(t *testing.T) {
	assert.Equal(t, new(big.Int).Mul(big.NewInt(5), big.NewInt(1e18)), RequiredFunding(1))
	assert.Equal(t, big.NewInt(1e18), RequiredFunding(11155111))
	assert.Equal(t, big.NewInt(1e18), RequiredFunding(1337))
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "0.0000", formatEther(big.NewInt(0)))
	assert.Equal(t, "1.0000", formatEther(big.NewInt(1e18)))
	assert.Equal(t, "0.1234", formatEther(big.NewInt(1234e14)))
}

func TestChecker_RunChecks(t *testing.T) {
	ctx := context.Background()
	req := &Request{RPCURL: "http://localhost:8545", ChainID: 1337, Deployer: deployer}

	t.Run("all checks pass", func(t *testing.T) {
		client := new(MockClient)
		client.On("ChainID", mock.Anything).Return(big.NewInt(1337), nil)
		client.On("BalanceAt", mock.Anything, deployer, (*big.Int)(nil)).Return(big.NewInt(2e18), nil)
		client.On("Close").Once()

		resp, err := NewChecker().WithDialer(dialTo(client)).RunChecks(ctx, req)
		require.NoError(t, err)
		assert.True(t, resp.OK)
		assert.NoError(t, resp.Err())
		require.Len(t, resp.Checks, 3)
		assert.Equal(t, []CheckName{CheckRPCReachable, CheckChainIDMatch, CheckDeployerBalance},
			[]CheckName{resp.Checks[0].Name, resp.Checks[1].Name, resp.Checks[2].Name})
		assert.Contains(t, resp.Checks[2].Message, "2.0000 ETH")
		client.AssertExpectations(t)
	})

	t.Run("chain id mismatch and low balance", func(t *testing.T) {
		client := new(MockClient)
		client.On("ChainID", mock.Anything).Return(big.NewInt(1), nil)
		client.On("BalanceAt", mock.Anything, mock.Anything, mock.Anything).Return(big.NewInt(1), nil)
		client.On("Close").Once()

		resp, err := NewChecker().WithDialer(dialTo(client)).RunChecks(ctx, req)
		require.NoError(t, err)
		assert.False(t, resp.OK)
		assert.False(t, resp.Checks[1].Passed)
		assert.False(t, resp.Checks[2].Passed)
		assert.Contains(t, resp.Checks[2].Message, "needs 1.0000 ETH")

		err = resp.Err()
		assert.ErrorIs(t, err, ErrFailed)
		assert.Contains(t, err.Error(), string(CheckChainIDMatch))
		assert.Contains(t, err.Error(), string(CheckDeployerBalance))
	})

	t.Run("funding override", func(t *testing.T) {
		client := new(MockClient)
		client.On("ChainID", mock.Anything).Return(big.NewInt(1337), nil)
		client.On("BalanceAt", mock.Anything, mock.Anything, mock.Anything).Return(big.NewInt(1), nil)
		client.On("Close").Once()

		override := *req
		override.RequiredFundingWei = big.NewInt(0)
		resp, err := NewChecker().WithDialer(dialTo(client)).RunChecks(ctx, &override)
		require.NoError(t, err)
		assert.True(t, resp.OK)
	})

	t.Run("unreachable", func(t *testing.T) {
		client := new(MockClient)
		client.On("ChainID", mock.Anything).Return(nil, errors.New("connection refused"))
		client.On("Close").Once()

		resp, err := NewChecker().WithDialer(dialTo(client)).RunChecks(ctx, req)
		require.NoError(t, err)
		require.Len(t, resp.Checks, 1)
		assert.Equal(t, CheckRPCReachable, resp.Checks[0].Name)
		assert.False(t, resp.OK)
		client.AssertExpectations(t)
	})
}

func TestChecker_RunChecks_InvalidRequest(t *testing.T) {
	resp, err := NewChecker().RunChecks(context.Background(), &Request{RPCURL: "http://localhost:8545", ChainID: 1337})
	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "deployer address is required")
}

func TestChecker_RunChecks_InvalidRPC(t *testing.T) {
	checker := NewChecker().WithTimeout(2 * time.Second)
	req := &Request{
		RPCURL:   "http://localhost:99999", // Invalid port
		ChainID:  1337,
		Deployer: deployer,
	}

	resp, err := checker.RunChecks(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, CheckRPCReachable, resp.Checks[0].Name)
	assert.False(t, resp.Checks[0].Passed)
	assert.False(t, resp.OK)
}
