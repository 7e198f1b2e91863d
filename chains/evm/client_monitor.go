package evm

import (
	"context"

	"github.com/crosspool/resolver-lib/connectionmonitor"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// evmConnectionManager implements the BlockchainClient interface and manages
// the connection to the EVM chain.
type evmConnectionManager struct {
	chain *evm
}

// initMonitor initializes the connection monitor for the EVM chain.
func (e *evm) initMonitor(ctx context.Context) error {
	e.monitorMutex.Lock()
	defer e.monitorMutex.Unlock()

	connectionManager := &evmConnectionManager{chain: e}
	e.monitor = connectionmonitor.NewConnectionMonitor(connectionManager, e.logger, e.config.Name)
	return e.monitor.Start(ctx)
}

// CheckConnection checks the connection by retrieving the current block number.
func (w *evmConnectionManager) CheckConnection(ctx context.Context) error {
	w.chain.clientMutex.RLock()
	client := w.chain.client
	w.chain.clientMutex.RUnlock()

	if client == nil {
		return errors.New("client not initialized")
	}

	_, err := client.BlockNumber(ctx)
	return err
}

// Reconnect re-establishes the connection to the Ethereum client.
func (w *evmConnectionManager) Reconnect(_ context.Context) error {
	w.chain.clientMutex.Lock()
	defer w.chain.clientMutex.Unlock()

	if w.chain.client != nil {
		w.chain.client.Close()
	}

	client, err := ethclient.Dial(w.chain.config.RpcUrl)
	if err != nil {
		return err
	}

	w.chain.client = client
	return nil
}
