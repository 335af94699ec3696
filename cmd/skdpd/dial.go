package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skdp/skdp/pkg/keyhierarchy"
	"github.com/skdp/skdp/pkg/metrics"
	"github.com/skdp/skdp/pkg/skdp"
)

func newDialCommand() *cobra.Command {
	var (
		devicePath string
		message    string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "dial <addr>",
		Short: "Connect to a branch server as a device",
		Long: `dial runs the initiator side of the SKDP handshake (spec §4) against
a branch server and exchanges one message, or drops into an interactive
loop when --message is "-". Grounded on cmd/quantum-vpn/demo.go's demo
client.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDial(cmd, args[0], devicePath, message, logLevel, logFormat)
		},
	}

	cmd.Flags().StringVar(&devicePath, "device", "", "path to the device key record (required)")
	cmd.Flags().StringVar(&message, "message", "hello", `message to send, or "-" for interactive mode`)
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, error, silent")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "text or json")
	_ = cmd.MarkFlagRequired("device")

	return cmd
}

func runDial(cmd *cobra.Command, addr, devicePath, message, logLevel, logFormat string) error {
	logger, err := newLogger(logLevel, logFormat)
	if err != nil {
		return err
	}

	kid, key, expiration, err := readRecord(devicePath)
	if err != nil {
		return fmt.Errorf("read device record: %w", err)
	}
	device := keyhierarchy.DeviceKeyRecord{KID: kid, DDK: key, Expiration: expiration}

	conn, err := skdp.Dial("tcp", addr, device)
	if err != nil {
		metrics.NewSessionObserver(metrics.SessionObserverConfig{Logger: logger, Role: "initiator"}).OnSessionFailed(err)
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	observer := metrics.NewSessionObserver(metrics.SessionObserverConfig{
		Logger: logger,
		KID:    conn.KID().Bytes(),
		Role:   "initiator",
	})
	observer.OnSessionStart()
	defer func() {
		_ = conn.Close()
		observer.OnSessionEnd()
	}()

	logger.Info("connected", nil)

	if message == "-" {
		return dialInteractive(cmd, conn, observer)
	}

	_, sendDone := observer.OnSend(nil, len(message))
	err = conn.Send([]byte(message))
	sendDone(err)
	if err != nil {
		observer.OnProtocolError(err)
		return fmt.Errorf("send: %w", err)
	}
	_, recvDone := observer.OnReceive(nil, 0)
	response, err := conn.Receive()
	recvDone(err)
	if err != nil {
		observer.OnProtocolError(err)
		return fmt.Errorf("receive: %w", err)
	}
	cmd.Printf("%s\n", response)
	return nil
}

func dialInteractive(cmd *cobra.Command, conn *skdp.Connection, observer *metrics.SessionObserver) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		_, sendDone := observer.OnSend(nil, len(line))
		err := conn.Send([]byte(line))
		sendDone(err)
		if err != nil {
			observer.OnProtocolError(err)
			return fmt.Errorf("send: %w", err)
		}
		_, recvDone := observer.OnReceive(nil, 0)
		response, err := conn.Receive()
		recvDone(err)
		if err != nil {
			observer.OnProtocolError(err)
			return fmt.Errorf("receive: %w", err)
		}
		cmd.Printf("< %s\n", response)
	}
}
