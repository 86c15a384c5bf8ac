package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YuzukiHD/SyterKit/host/link"
	"github.com/YuzukiHD/SyterKit/mctl"
)

var dramOpts struct {
	params []string
	words  uint32
}

var dramCmd = &cobra.Command{
	Use:   "dram",
	Short: "DRAM controller bring-up",
}

var dramInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Train DRAM, optionally overriding parameter words first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		for _, kv := range dramOpts.params {
			i, v, err := parseParam(kv)
			if err != nil {
				return err
			}
			if err := c.SetParam(i, v); err != nil {
				return err
			}
		}
		res, err := c.InitDRAM()
		fmt.Fprintln(cmd.OutOrStdout(), res)
		return err
	},
}

// parseParam splits name=value; the value takes any Go integer prefix
func parseParam(kv string) (int, uint32, error) {
	name, val, ok := strings.Cut(kv, "=")
	if !ok {
		return 0, 0, fmt.Errorf("param %q: want name=value", kv)
	}
	i, ok := mctl.ParamIndex(strings.TrimSpace(name))
	if !ok {
		return 0, 0, fmt.Errorf("param %q: %w", name, mctl.ErrUnknownParam)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(val), 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("param %q: %w", name, err)
	}
	return i, uint32(v), nil
}

var dramStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show DRAM state and the parameter block",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		st, err := c.DRAMStatus()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if st.Ready {
			fmt.Fprintf(out, "ready: %d MB\n", st.SizeMB)
		} else {
			fmt.Fprintln(out, "not initialized")
		}
		p, err := c.Params()
		if err != nil {
			return err
		}
		fmt.Fprint(out, p.Summary())
		return nil
	},
}

var dramSelfTestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Rerun the DRAM pattern test (destroys DRAM contents)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		size, err := c.SelfTest(dramOpts.words)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "self-test passed over %d MB\n", size)
		return nil
	},
}

func init() {
	dramInitCmd.Flags().StringSliceVarP(&dramOpts.params, "param", "p", nil, "parameter override name=value (repeatable)")
	dramSelfTestCmd.Flags().Uint32Var(&dramOpts.words, "words", mctl.DefaultSelfTestWords, "words tested per region")

	dramCmd.AddCommand(dramInitCmd, dramStatusCmd, dramSelfTestCmd)
	rootCmd.AddCommand(dramCmd)
}

// ensureDRAM initializes DRAM unless the board reports it up, and
// returns the size
func ensureDRAM(c *link.Client) (uint32, error) {
	st, err := c.DRAMStatus()
	if err != nil {
		return 0, err
	}
	if st.Ready {
		return st.SizeMB, nil
	}
	res, err := c.InitDRAM()
	if err != nil {
		return 0, err
	}
	return res.SizeMB, nil
}
