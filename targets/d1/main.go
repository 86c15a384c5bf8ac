//go:build sun20iw1

// Command d1 is the SPL link firmware for the Allwinner D1. It brings up
// the console UART, then serves the command link until the host asks it
// to jump into DRAM.
package main

import (
	"log/slog"

	"github.com/YuzukiHD/SyterKit/core"
	"github.com/YuzukiHD/SyterKit/firmware"
	"github.com/YuzukiHD/SyterKit/mctl"
	"github.com/YuzukiHD/SyterKit/pmu"
	"github.com/YuzukiHD/SyterKit/protocol"
	"github.com/YuzukiHD/SyterKit/twi"
	"github.com/YuzukiHD/SyterKit/uart"
)

var (
	console      *uart.UART
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	msgerrors uint32

	// set with -ldflags="-X main.version=..."
	version = "syterkit-d1"
)

func main() {
	core.DisableInterrupts()

	bus := core.MMIOBus{}
	core.SetRegisterBus(bus)
	core.TimerInit()

	b := currentBoard()
	console = uart.New(bus, b.console)
	console.Configure()

	// Text shares the link UART, so it only goes out once the host has
	// turned debug on with set_debug.
	core.SetDebugWriter(func(s string) {
		if core.IsDebugEnabled() {
			console.WriteString(s + "\n")
		}
	})
	log := core.NewLogger(slog.LevelInfo)

	ctrl := mctl.NewController(bus, mctl.Options{
		Regulator:      initPMU(bus, b, log),
		Logger:         log,
		SelfTestPolicy: mctl.SelfTestStrict,
	})
	svc := firmware.NewService(firmware.Config{
		Bus:    bus,
		Ctrl:   ctrl,
		Params: b.params(),
		Boot:   jump,
		Logger: log,
	})

	core.InitCoreCommands()
	firmware.Install(svc)
	dict := core.GetGlobalDictionary()
	dict.SetVersion(version)
	dict.SetBuildVersions("tinygo sun20iw1 " + boardName)
	dict.BuildDictionary()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	// responses are queued before the ACK; send both before the next block
	transport.SetFlushCallback(writeOutput)
	core.SetGlobalTransport(transport)
	core.SetResetHandler(resetSoC)

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			pollConsole()
			if inputBuffer.Available() > 0 {
				transport.Receive(inputBuffer)
			}
			writeOutput()

			core.CheckPendingReset()
			firmware.CheckPendingBoot()
		}()
	}
}

// initPMU probes the board PMU and returns a regulator for the DRAM
// rail. nil leaves the controller on the SoC LDO.
func initPMU(bus core.RegisterBus, b board, log *slog.Logger) mctl.VoltageRegulator {
	if b.pmu == nil {
		return nil
	}
	i2c := twi.New(bus, *b.pmu)
	if err := i2c.Configure(); err != nil {
		log.Warn("twi", "err", err)
		return nil
	}
	p := pmu.NewAXP1530(i2c, log)
	if err := p.Init(); err != nil {
		log.Warn("pmu", "err", err)
		return nil
	}
	return pmu.DRAMRegulator{PMU: p, Rail: b.pmuRail}
}

// pollConsole moves received bytes into the input FIFO
func pollConsole() {
	var rx [64]byte
	n, _ := console.Read(rx[:min(len(rx), inputBuffer.Free())])
	if n > 0 {
		inputBuffer.Write(rx[:n])
	}
}

func writeOutput() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}
	console.Write(result)
	if outputBuffer.Overflowed() {
		msgerrors++
	}
	outputBuffer.Reset()
}
