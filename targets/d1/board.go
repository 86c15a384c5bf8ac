//go:build sun20iw1

package main

import (
	"github.com/YuzukiHD/SyterKit/core"
	"github.com/YuzukiHD/SyterKit/mctl"
	"github.com/YuzukiHD/SyterKit/twi"
	"github.com/YuzukiHD/SyterKit/uart"
)

// boardName selects the entry in boards; override with
// -ldflags="-X main.boardName=..."
var boardName = "nezha"

// board is the wiring the loader depends on
type board struct {
	console uart.Config
	params  func() *mctl.Params

	// pmu is nil when VCC-DRAM comes from a fixed regulator or the SoC LDO
	pmu     *twi.Config
	pmuRail string
}

var boards = map[string]board{
	"nezha": {
		console: uart.Config{
			ID:   0,
			Base: uart.UART0Base,
			TX:   core.Pin{Port: 'B', Num: 8, Mux: 6},
			RX:   core.Pin{Port: 'B', Num: 9, Mux: 6},
		},
		params: mctl.NezhaParams,
	},
	"lichee-rv": {
		console: uart.Config{
			ID:   0,
			Base: uart.UART0Base,
			TX:   core.Pin{Port: 'B', Num: 8, Mux: 6},
			RX:   core.Pin{Port: 'B', Num: 9, Mux: 6},
		},
		params: mctl.LicheeRVParams,
	},
	"dongshan-pi": {
		console: uart.Config{
			ID:   0,
			Base: uart.UART0Base,
			TX:   core.Pin{Port: 'E', Num: 2, Mux: 6},
			RX:   core.Pin{Port: 'E', Num: 3, Mux: 6},
		},
		params: mctl.NezhaParams,
		pmu: &twi.Config{
			ID:        0,
			Base:      twi.TWI0Base,
			Frequency: 400000,
			SCL:       core.Pin{Port: 'B', Num: 10, Mux: 4},
			SDA:       core.Pin{Port: 'B', Num: 11, Mux: 4},
		},
		pmuRail: "dcdc3",
	},
}

func currentBoard() board {
	if b, ok := boards[boardName]; ok {
		return b
	}
	return boards["nezha"]
}
