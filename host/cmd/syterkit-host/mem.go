package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"zappem.net/pub/debug/xcrc32"
	"zappem.net/pub/debug/xxd"

	"github.com/YuzukiHD/SyterKit/host/link"
)

var memOpts struct {
	out    string
	verify bool
}

var memCmd = &cobra.Command{
	Use:   "mem",
	Short: "Read and write board memory",
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %w", s, err)
	}
	return uint32(v), nil
}

var memReadCmd = &cobra.Command{
	Use:   "read ADDR LEN",
	Short: "Hex dump LEN bytes at ADDR, or save them with --out",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseUint32(args[0])
		if err != nil {
			return err
		}
		n, err := parseUint32(args[1])
		if err != nil {
			return err
		}
		c, err := connect()
		if err != nil {
			return err
		}
		d, err := c.ReadMem(addr, n)
		if err != nil {
			return err
		}
		if memOpts.out != "" {
			return os.WriteFile(memOpts.out, d, 0644)
		}
		xxd.Print(int(addr), d)
		return nil
	},
}

var memWriteCmd = &cobra.Command{
	Use:   "write ADDR FILE",
	Short: "Write FILE to ADDR and check the board's CRC32",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseUint32(args[0])
		if err != nil {
			return err
		}
		d, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		c, err := connect()
		if err != nil {
			return err
		}
		if err := upload(c, args[1], addr, d, memOpts.verify); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to 0x%08x\n", len(d), addr)
		return nil
	},
}

// upload writes d at addr and, if verify is set, compares the board's
// CRC32 of the range with the local one
func upload(c *link.Client, name string, addr uint32, d []byte, verify bool) error {
	step := max(len(d)/10, 1)
	next := step
	err := c.WriteMem(addr, d, func(done int) {
		if done >= next {
			glog.V(1).Infof("%s: %d/%d bytes", name, done, len(d))
			next += step
		}
	})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if !verify {
		return nil
	}
	_, want := xcrc32.NewCRC32(d)
	got, err := c.MemCRC(addr, uint32(len(d)))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("%s: crc mismatch at 0x%08x: board 0x%08x, file 0x%08x", name, addr, got, want)
	}
	glog.Infof("%s: %d bytes at 0x%08x, crc 0x%08x", name, len(d), addr, got)
	return nil
}

func init() {
	memReadCmd.Flags().StringVarP(&memOpts.out, "out", "o", "", "write the data to a file instead of dumping it")
	memWriteCmd.Flags().BoolVar(&memOpts.verify, "verify", true, "compare CRC32 after writing")

	memCmd.AddCommand(memReadCmd, memWriteCmd)
	rootCmd.AddCommand(memCmd)
}
