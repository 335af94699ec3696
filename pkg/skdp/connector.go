package skdp

import (
	"net"

	"github.com/skdp/skdp/pkg/handshake"
	"github.com/skdp/skdp/pkg/keyhierarchy"
)

// Dial connects to a branch server and performs the initiator side of the
// SKDP handshake (spec §4, phases Connect through Establish) using default
// timeouts.
func Dial(network, address string, device keyhierarchy.DeviceKeyRecord) (*Connection, error) {
	return DialWithConfig(network, address, device, DefaultConfig())
}

// DialWithConfig is Dial with explicit connection tunables.
func DialWithConfig(network, address string, device keyhierarchy.DeviceKeyRecord, cfg Config) (*Connection, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, err
	}

	sess, err := handshake.InitiatorHandshake(conn, device)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return newConnection(sess, conn, cfg), nil
}
