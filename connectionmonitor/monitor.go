package connectionmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// healthCheckInterval defines interval between connection health checks.
	healthCheckInterval = 30 * time.Second
	// reconnectTimeout defines timeout for reconnection attempts.
	reconnectTimeout = 5 * time.Second
	// maxReconnectAttempts defines maximum number of reconnection attempts per check.
	maxReconnectAttempts = 3
)

// ConnectionMonitor represents connection state monitoring interface.
type ConnectionMonitor interface {
	// Start starts connection monitoring.
	Start(ctx context.Context) error
	// Stop stops connection monitoring.
	Stop()
}

// BlockchainClient represents blockchain client interface.
type BlockchainClient interface {
	// CheckConnection checks if connection is alive.
	CheckConnection(ctx context.Context) error
	// Reconnect attempts to reconnect to blockchain node.
	Reconnect(ctx context.Context) error
}

type connectionMonitor struct {
	client       BlockchainClient
	logger       *logrus.Logger
	chainName    string
	stopChan     chan struct{}
	isMonitoring bool
	monitorMutex sync.RWMutex
}

// NewConnectionMonitor creates a new connection monitor instance for the given
// chain client.
func NewConnectionMonitor(
	client BlockchainClient,
	logger *logrus.Logger,
	chainName string,
) ConnectionMonitor {
	return &connectionMonitor{
		client:    client,
		logger:    logger,
		chainName: chainName,
		stopChan:  make(chan struct{}),
	}
}

// Start starts connection monitoring. Returns an error if the monitor is
// already running.
func (m *connectionMonitor) Start(ctx context.Context) error {
	m.monitorMutex.Lock()
	if m.isMonitoring {
		m.monitorMutex.Unlock()
		return errors.Errorf("connection monitor is already running for chain %s", m.chainName)
	}
	m.isMonitoring = true
	m.monitorMutex.Unlock()

	go m.monitorConnection(ctx)
	return nil
}

// Stop stops connection monitoring.
func (m *connectionMonitor) Stop() {
	m.monitorMutex.Lock()
	defer m.monitorMutex.Unlock()

	if !m.isMonitoring {
		return
	}

	close(m.stopChan)
	m.isMonitoring = false
}

func (m *connectionMonitor) monitorConnection(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.WithField("chain", m.chainName).Info("Connection monitoring stopped due to context cancellation")
			return

		case <-m.stopChan:
			m.logger.WithField("chain", m.chainName).Info("Connection monitoring stopped")
			return

		case <-ticker.C:
			if err := m.checkAndReconnect(ctx); err != nil {
				m.logger.WithField("chain", m.chainName).WithError(err).Error("Failed to restore connection")
			}
		}
	}
}

func (m *connectionMonitor) checkAndReconnect(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, reconnectTimeout)
	err := m.client.CheckConnection(checkCtx)
	cancel()
	if err == nil {
		return nil
	}

	m.logger.WithField("chain", m.chainName).WithError(err).Warn("Connection check failed, reconnecting")

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		reconnectCtx, cancel := context.WithTimeout(ctx, reconnectTimeout)
		err = m.client.Reconnect(reconnectCtx)
		cancel()
		if err == nil {
			m.logger.WithField("chain", m.chainName).Info("Connection restored")
			return nil
		}

		m.logger.WithField("chain", m.chainName).
			WithField("attempt", attempt).
			WithError(err).
			Warn("Reconnect attempt failed")
	}

	return errors.Wrapf(err, "failed to reconnect after %d attempts", maxReconnectAttempts)
}
