//go:build sun20iw1

package main

import (
	"device/riscv"

	"github.com/YuzukiHD/SyterKit/core"
)

const (
	wdogBase    = 0x020500a0
	wdogSoftRst = wdogBase + 0x08
	wdogKey     = 0x16aa << 16
)

// jump leaves the loader for entry. The C906 data cache is written back
// first so the images copied over the link are visible to instruction
// fetch. mode becomes mstatus.MPP; a1 carries the info block.
func jump(entry, mode, info uint32) {
	writeOutput()
	riscv.AsmFull(`
		.word 0x0030000b
		fence.i
		csrw mepc, {entry}
		li t0, 0x1800
		csrc mstatus, t0
		slli t1, {mode}, 11
		csrs mstatus, t1
		mv a1, {info}
		csrr a0, mhartid
		mret
	`, map[string]interface{}{
		"entry": uintptr(entry),
		"mode":  uintptr(mode & 3),
		"info":  uintptr(info),
	})
}

// resetSoC fires the watchdog soft reset
func resetSoC() {
	core.MustBus().Write32(wdogSoftRst, wdogKey|1)
	for {
	}
}
