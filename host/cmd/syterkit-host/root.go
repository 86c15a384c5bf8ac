package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/YuzukiHD/SyterKit/host/link"
	"github.com/YuzukiHD/SyterKit/host/serial"
)

var opts struct {
	device  string
	baud    int
	backend string
	timeout time.Duration
}

// client stays open across shell lines
var client *link.Client

var rootCmd = &cobra.Command{
	Use:           "syterkit-host",
	Short:         "Talk to a D1 board running the SyterKit SPL",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	def := serial.DefaultConfig("/dev/ttyUSB0")
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.device, "device", "d", def.Device, "serial device")
	flags.IntVarP(&opts.baud, "baud", "b", def.Baud, "baud rate")
	flags.StringVar(&opts.backend, "backend", string(def.Backend), "serial backend: tarm or term")
	flags.DurationVar(&opts.timeout, "timeout", time.Second, "per-command timeout")

	rootCmd.AddCommand(infoCmd)
}

func serialConfig() (*serial.Config, error) {
	backend, err := serial.ParseBackend(opts.backend)
	if err != nil {
		return nil, err
	}
	cfg := serial.DefaultConfig(opts.device)
	cfg.Baud = opts.baud
	cfg.Backend = backend
	return cfg, nil
}

// connect opens the link on first use and loads the dictionary
func connect() (*link.Client, error) {
	if client != nil {
		return client, nil
	}
	cfg, err := serialConfig()
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("opening %s at %d baud (%s)", cfg.Device, cfg.Baud, cfg.Backend)
	c, err := link.Dial(cfg)
	if err != nil {
		return nil, err
	}
	c.Timeout = opts.timeout
	if err := c.RetrieveDictionary(); err != nil {
		c.Close()
		return nil, err
	}
	client = c
	return c, nil
}

func closeClient() {
	if client != nil {
		client.Close()
		client = nil
	}
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the firmware dictionary and DRAM state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		d := c.Dictionary()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "version: %s (%s)\n", d.Version, d.BuildVersions)

		keys := make([]string, 0, len(d.Config))
		for k := range d.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %-12s %s\n", k, d.Config[k])
		}
		fmt.Fprintf(out, "commands: %d, responses: %d\n", len(d.Commands), len(d.Responses))

		if up, err := c.Uptime(); err == nil {
			fmt.Fprintf(out, "uptime: %d ticks\n", up)
		}
		st, err := c.DRAMStatus()
		if err != nil {
			return err
		}
		if !st.Ready {
			fmt.Fprintln(out, "dram: not initialized")
			return nil
		}
		fmt.Fprintf(out, "dram: %d MB para1=0x%08x para2=0x%08x tpr13=0x%08x\n",
			st.SizeMB, st.Para1, st.Para2, st.TPR13)
		return nil
	},
}
