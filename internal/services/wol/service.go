// Package wol provides Wake-on-LAN operations.
package wol

import (
	"context"
	"fmt"
	"net"

	"github.com/fgeck/ilohelper/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(broadcastIP string, mac net.HardwareAddr) error
}

// DefaultClient is the default implementation using mdlayher/wol.
type DefaultClient struct{}

// Wake sends a magic packet to the specified MAC address.
func (c *DefaultClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	ip := net.ParseIP(broadcastIP)
	if ip == nil {
		return fmt.Errorf("invalid broadcast IP: %s", broadcastIP)
	}

	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Wake(net.JoinHostPort(ip.String(), "9"), mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}

	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient Client
	logger    zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return NewWithClient(logger, &DefaultClient{})
}

// NewWithClient creates a new WOL service with a custom client (for testing).
func NewWithClient(logger zerolog.Logger, wolClient Client) *Impl {
	return &Impl{
		wolClient: wolClient,
		logger:    logger,
	}
}

// Wake sends a magic packet. Waiting for the host is left to the caller.
func (s *Impl) Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error) {
	result := &models.WOLResult{}

	mac, err := net.ParseMAC(cfg.MACAddress)
	if err != nil {
		result.Error = fmt.Errorf("invalid MAC address %q: %w", cfg.MACAddress, err)
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		result.Error = err
		return result, nil
	}

	s.logger.Info().
		Str("mac", cfg.MACAddress).
		Str("broadcast", cfg.BroadcastIP).
		Msg("sending WOL packet")

	if err := s.wolClient.Wake(cfg.BroadcastIP, mac); err != nil {
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in result struct
	}

	result.PacketSent = true
	s.logger.Info().Msg("WOL packet sent successfully")

	return result, nil
}
