package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Backend is the slice of *ethclient.Client the coordinator uses.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	Close()
}

var _ Backend = (*ethclient.Client)(nil)

// Endpoint pairs a backend with the URL it was dialed from, for logging.
type Endpoint struct {
	URL     string
	Backend Backend
}

// DialEndpoints connects to every URL. Dialing over HTTP is lazy, so this only fails
// on malformed URLs.
func DialEndpoints(ctx context.Context, urls []string, httpClient *http.Client) ([]Endpoint, error) {
	endpoints := make([]Endpoint, 0, len(urls))
	for _, url := range urls {
		var opts []rpc.ClientOption
		if httpClient != nil {
			opts = append(opts, rpc.WithHTTPClient(httpClient))
		}
		rpcClient, err := rpc.DialOptions(ctx, url, opts...)
		if err != nil {
			for _, e := range endpoints {
				e.Backend.Close()
			}
			return nil, fmt.Errorf("failed to dial %s: %w", url, err)
		}
		endpoints = append(endpoints, Endpoint{URL: url, Backend: ethclient.NewClient(rpcClient)})
	}
	return endpoints, nil
}
