package wol

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/fgeck/ilohelper/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWOLClient struct {
	wakeFunc func(broadcastIP string, mac net.HardwareAddr) error
	calls    int
}

func (m *mockWOLClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	m.calls++
	if m.wakeFunc != nil {
		return m.wakeFunc(broadcastIP, mac)
	}
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestWake_Success(t *testing.T) {
	var capturedMAC net.HardwareAddr
	var capturedBroadcastIP string

	wolClient := &mockWOLClient{
		wakeFunc: func(broadcastIP string, mac net.HardwareAddr) error {
			capturedMAC = mac
			capturedBroadcastIP = broadcastIP
			return nil
		},
	}

	svc := NewWithClient(testLogger(), wolClient)

	cfg := models.WOLConfig{
		MACAddress:  "AA:BB:CC:DD:EE:FF",
		BroadcastIP: "192.168.1.255",
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.Nil(t, result.Error)

	expectedMAC, _ := net.ParseMAC("AA:BB:CC:DD:EE:FF")
	assert.Equal(t, expectedMAC, capturedMAC)
	assert.Equal(t, "192.168.1.255", capturedBroadcastIP)
}

func TestWake_InvalidMAC(t *testing.T) {
	wolClient := &mockWOLClient{}
	svc := NewWithClient(testLogger(), wolClient)

	cfg := models.WOLConfig{
		MACAddress:  "invalid-mac",
		BroadcastIP: "192.168.1.255",
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "invalid MAC address")
	assert.Equal(t, 0, wolClient.calls)
}

func TestWake_SendFailed(t *testing.T) {
	wolClient := &mockWOLClient{
		wakeFunc: func(broadcastIP string, mac net.HardwareAddr) error {
			return errors.New("network unreachable")
		},
	}

	svc := NewWithClient(testLogger(), wolClient)

	cfg := models.WOLConfig{
		MACAddress:  "AA:BB:CC:DD:EE:FF",
		BroadcastIP: "192.168.1.255",
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "network unreachable")
}

func TestWake_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wolClient := &mockWOLClient{}
	svc := NewWithClient(testLogger(), wolClient)

	cfg := models.WOLConfig{
		MACAddress:  "AA:BB:CC:DD:EE:FF",
		BroadcastIP: "192.168.1.255",
	}

	result, err := svc.Wake(ctx, cfg)

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	assert.ErrorIs(t, result.Error, context.Canceled)
	assert.Equal(t, 0, wolClient.calls)
}

func TestDefaultClient_InvalidBroadcastIP(t *testing.T) {
	mac, err := net.ParseMAC("AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)

	err = (&DefaultClient{}).Wake("not-an-ip", mac)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid broadcast IP")
}
