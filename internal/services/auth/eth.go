package auth

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"wcsign/internal/domain"
)

// eip1271Magic is the isValidSignature success return value.
var eip1271Magic = []byte{0x16, 0x26, 0xba, 0x7e}

const isValidSignatureJSON = `[{"type":"function","name":"isValidSignature","stateMutability":"view",` +
	`"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],` +
	`"outputs":[{"name":"magicValue","type":"bytes4"}]}]`

var isValidSignatureABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(isValidSignatureJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// EthCaller performs EIP-1271 checks over JSON-RPC. URLTemplate contains a
// "{chain}" placeholder replaced by the CAIP-2 chain id, e.g.
// "https://rpc.example/v1?chainId={chain}".
type EthCaller struct {
	urlTemplate string

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

var _ domain.ContractCaller = (*EthCaller)(nil)

func NewEthCaller(urlTemplate string) *EthCaller {
	return &EthCaller{urlTemplate: urlTemplate, clients: make(map[string]*ethclient.Client)}
}

func (c *EthCaller) IsValidSignature(ctx context.Context, chain domain.Blockchain, contract string, hash [32]byte, signature []byte) (bool, error) {
	if !common.IsHexAddress(contract) {
		return false, fmt.Errorf("contract %q is not an address", contract)
	}
	client, err := c.client(ctx, chain)
	if err != nil {
		return false, err
	}
	data, err := isValidSignatureABI.Pack("isValidSignature", hash, signature)
	if err != nil {
		return false, fmt.Errorf("pack isValidSignature: %w", err)
	}
	to := common.HexToAddress(contract)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("%w: isValidSignature: %w", domain.ErrTransport, err)
	}
	return len(out) >= 4 && bytes.Equal(out[:4], eip1271Magic), nil
}

func (c *EthCaller) client(ctx context.Context, chain domain.Blockchain) (*ethclient.Client, error) {
	if c.urlTemplate == "" {
		return nil, fmt.Errorf("no rpc url configured for %s", chain)
	}
	url := strings.ReplaceAll(c.urlTemplate, "{chain}", chain.String())

	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[url]; ok {
		return cl, nil
	}
	cl, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", domain.ErrTransport, chain, err)
	}
	c.clients[url] = cl
	return cl, nil
}

// Close releases every dialed client.
func (c *EthCaller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for url, cl := range c.clients {
		cl.Close()
		delete(c.clients, url)
	}
}
