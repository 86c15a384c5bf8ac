package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"github.com/YuzukiHD/SyterKit/host/serial"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run commands interactively over one connection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := connect(); err != nil {
			return err
		}
		return runShell(cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func runShell(in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "syterkit> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		switch words[0] {
		case "quit", "exit", "q":
			return nil
		case "shell":
			fmt.Fprintln(out, "already in the shell")
			continue
		}
		rootCmd.SetArgs(words)
		if err := rootCmd.Execute(); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

var resetOpts struct {
	line  bool
	pulse time.Duration
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the board",
	Long: `Asks the firmware to reset the SoC. With --line the DTR and RTS lines
are pulsed instead, which needs the term backend.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if resetOpts.line {
			closeClient()
			cfg, err := serialConfig()
			if err != nil {
				return err
			}
			port, err := serial.Open(cfg)
			if err != nil {
				return err
			}
			defer port.Close()
			return serial.Reset(port, resetOpts.pulse)
		}
		c, err := connect()
		if err != nil {
			return err
		}
		err = c.Reset()
		closeClient()
		return err
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetOpts.line, "line", false, "pulse DTR/RTS instead of sending reset")
	resetCmd.Flags().DurationVar(&resetOpts.pulse, "pulse", 100*time.Millisecond, "reset pulse width")

	rootCmd.AddCommand(shellCmd, resetCmd)
}
