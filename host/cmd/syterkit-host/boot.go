package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/YuzukiHD/SyterKit/host/link"
	"github.com/YuzukiHD/SyterKit/loader"
	"github.com/YuzukiHD/SyterKit/mctl"
)

var bootOpts struct {
	dryRun bool
	sizeMB uint32
	hart   uint64
	noJump bool
}

var bootCmd = &cobra.Command{
	Use:   "boot DIR",
	Short: "Load the images named by DIR/config.toml and start the firmware",
	Long: `Reads the boot config from DIR, applies its [dram] overrides, brings
DRAM up, uploads the firmware, opaque blob, next stage and hand-off record,
verifies each by CRC32 and jumps to the firmware in machine mode.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l := &loader.Loader{FS: os.DirFS(args[0])}
		cfg, err := l.ReadConfig()
		if cfg == nil {
			return err
		}
		if err != nil {
			glog.Warningf("%v; using defaults", err)
		}

		if bootOpts.dryRun {
			return planOnly(cmd.OutOrStdout(), l, bootOpts.sizeMB)
		}

		c, err := connect()
		if err != nil {
			return err
		}
		if err := applyDRAM(c, cfg); err != nil {
			return err
		}
		size, err := ensureDRAM(c)
		if err != nil {
			return err
		}

		plan, err := buildPlan(l, cfg, size)
		if err != nil {
			return err
		}
		report(cmd.OutOrStdout(), plan)

		for _, img := range plan.Images {
			if err := upload(c, img.Name, img.Addr, img.Data, true); err != nil {
				return err
			}
		}
		if bootOpts.noJump {
			return nil
		}
		return c.Boot(plan.Entry, uint32(plan.EntryMode), plan.InfoAddr)
	},
}

// applyDRAM pushes the config's [dram] words while the block is still
// writable
func applyDRAM(c *link.Client, cfg *loader.BootConfig) error {
	if len(cfg.DRAM) == 0 {
		return nil
	}
	st, err := c.DRAMStatus()
	if err != nil {
		return err
	}
	if st.Ready {
		glog.Warningf("DRAM already up; ignoring [dram] overrides")
		return nil
	}
	for name, v := range cfg.DRAM {
		i, _ := mctl.ParamIndex(name)
		if err := c.SetParam(i, v); err != nil {
			return err
		}
	}
	return nil
}

func buildPlan(l *loader.Loader, cfg *loader.BootConfig, sizeMB uint32) (*loader.Plan, error) {
	l.Layout = loader.DefaultLayout(sizeMB).Apply(cfg.Layout, sizeMB)
	b, err := l.Load(nil)
	var le *loader.LoadErrors
	if errors.As(err, &le) {
		for _, e := range le.Errs {
			glog.Errorf("%v", e)
		}
	}
	if b == nil || len(b.Firmware) == 0 {
		if err == nil {
			err = loader.ErrNoFirmware
		}
		return nil, err
	}
	return l.Plan(b, bootOpts.hart)
}

func planOnly(out io.Writer, l *loader.Loader, sizeMB uint32) error {
	cfg, _ := l.ReadConfig()
	plan, err := buildPlan(l, cfg, sizeMB)
	if err != nil {
		return err
	}
	report(out, plan)
	return nil
}

func report(out io.Writer, p *loader.Plan) {
	for _, img := range p.Images {
		fmt.Fprintf(out, "%-10s 0x%08x %8d bytes crc 0x%08x\n", img.Name, img.Addr, len(img.Data), img.CRC32)
	}
	fmt.Fprintf(out, "entry 0x%08x (%s), info 0x%08x, next 0x%08x (%s)\n",
		p.Entry, p.EntryMode, p.InfoAddr, p.Info.NextAddr, loader.Mode(p.Info.NextMode))
	for _, w := range p.Warnings {
		glog.Warning(w)
	}
}

func init() {
	flags := bootCmd.Flags()
	flags.BoolVarP(&bootOpts.dryRun, "dry-run", "n", false, "print the load plan without a board")
	flags.Uint32Var(&bootOpts.sizeMB, "size", 512, "DRAM size in MB assumed by --dry-run")
	flags.Uint64Var(&bootOpts.hart, "hart", 0, "boot hart id in the hand-off record")
	flags.BoolVar(&bootOpts.noJump, "no-jump", false, "upload and verify but do not jump")

	rootCmd.AddCommand(bootCmd)
}
