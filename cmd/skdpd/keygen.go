package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/skdp/skdp/pkg/keyhierarchy"
	"github.com/skdp/skdp/pkg/skdpcrypto"
)

func newKeygenCommand() *cobra.Command {
	var (
		level   string
		mid     string
		bid     string
		did     string
		ttl     time.Duration
		outPath string
		parent  string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Issue a master, branch, or device key record",
		Long: `keygen issues one level of the SKDP key hierarchy (spec §3, §4.2):

  master  a fresh random master distribution key (MDK), root of trust
  branch  a server key derived from a master record (--parent)
  device  a client key derived from a branch record (--parent)

Each issued record is written to --out in the fixed-width persistent key
file layout (kid || key || expiration), readable back with DecodeRecord.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level = args[0]
			expiration := uint64(time.Now().Add(ttl).Unix())

			switch level {
			case "master":
				return keygenMaster(cmd, mid, expiration, outPath)
			case "branch":
				return keygenBranch(cmd, parent, bid, expiration, outPath)
			case "device":
				return keygenDevice(cmd, parent, did, expiration, outPath)
			default:
				return fmt.Errorf("unknown key level %q (want master, branch, or device)", level)
			}
		},
	}

	cmd.Flags().StringVar(&mid, "mid", "", "master identifier (up to 4 bytes, master only)")
	cmd.Flags().StringVar(&bid, "bid", "", "branch identifier (up to 4 bytes, branch only)")
	cmd.Flags().StringVar(&did, "did", "", "device identifier (up to 8 bytes, device only)")
	cmd.Flags().StringVar(&parent, "parent", "", "path to the parent record (branch/device)")
	cmd.Flags().DurationVar(&ttl, "ttl", 365*24*time.Hour, "validity period from now")
	cmd.Flags().StringVar(&outPath, "out", "", "output path (required)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func keygenMaster(cmd *cobra.Command, mid string, expiration uint64, outPath string) error {
	mdk, err := skdpcrypto.SecureRandomBytes(skdpcrypto.K)
	if err != nil {
		return fmt.Errorf("generate master key: %w", err)
	}
	kid := keyhierarchy.NewKeyID([]byte(mid), nil, nil)
	return writeRecord(cmd, kid, mdk, expiration, outPath, "master")
}

func keygenBranch(cmd *cobra.Command, parentPath, bid string, expiration uint64, outPath string) error {
	if parentPath == "" {
		return fmt.Errorf("branch keygen requires --parent pointing at a master record")
	}
	kid, key, _, err := readRecord(parentPath)
	if err != nil {
		return fmt.Errorf("read master record: %w", err)
	}
	master := keyhierarchy.MasterKeyRecord{KID: kid, MDK: key}
	branch, err := keyhierarchy.IssueServer(master, []byte(bid), expiration)
	if err != nil {
		return fmt.Errorf("issue branch key: %w", err)
	}
	return writeRecord(cmd, branch.KID, branch.BDK, branch.Expiration, outPath, "branch")
}

func keygenDevice(cmd *cobra.Command, parentPath, did string, expiration uint64, outPath string) error {
	if parentPath == "" {
		return fmt.Errorf("device keygen requires --parent pointing at a branch record")
	}
	kid, key, _, err := readRecord(parentPath)
	if err != nil {
		return fmt.Errorf("read branch record: %w", err)
	}
	branch := keyhierarchy.BranchKeyRecord{KID: kid, BDK: key}
	device, err := keyhierarchy.IssueDevice(branch, []byte(did), expiration)
	if err != nil {
		return fmt.Errorf("issue device key: %w", err)
	}
	return writeRecord(cmd, device.KID, device.DDK, device.Expiration, outPath, "device")
}

func writeRecord(cmd *cobra.Command, kid keyhierarchy.KeyID, key []byte, expiration uint64, outPath, level string) error {
	record, err := keyhierarchy.EncodeRecord(kid, key, expiration)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", level, err)
	}
	if err := os.WriteFile(outPath, record, 0o600); err != nil {
		return fmt.Errorf("write %s record: %w", level, err)
	}
	cmd.Printf("issued %s key, kid=%x, expires=%d, written to %s\n", level, kid.Bytes(), expiration, outPath)
	return nil
}

func readRecord(path string) (keyhierarchy.KeyID, []byte, uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return keyhierarchy.KeyID{}, nil, 0, err
	}
	return keyhierarchy.DecodeRecord(b)
}
