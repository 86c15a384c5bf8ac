package mctl

import "github.com/YuzukiHD/SyterKit/core"

// RAMBase is where DRAM appears on the system bus
const RAMBase = 0x40000000

// System configuration, fuse and standby registers
const (
	sysLDOCtrl   = 0x03000150
	resCalCtrl   = 0x03000160
	res240Ctrl   = 0x03000168
	zqValue      = 0x03000172
	sidInfo      = 0x03002228
	someStatus   = 0x070005d4
	someOther    = 0x07010250
	analogPwroff = 0x07010254
)

// CCU registers
const (
	ccuBase    = 0x02001000
	pllDDRCtrl = ccuBase + 0x010
	mbusClk    = ccuBase + 0x540
	dramClk    = ccuBase + 0x800
	dramBGR    = ccuBase + 0x80c
)

// PLL_DDR bits
const (
	pllEnable  = 1 << 31
	pllLDO     = 1 << 30
	pllLockEn  = 1 << 29
	pllLock    = 1 << 28
	pllOutGate = 1 << 27
	pllNShift  = 8
	pllM1      = 1 << 1
	pllM0      = 1 << 0
)

// DRAM_CLK, DRAM_BGR and MBUS_CLK bits
const (
	dramClkGate   = 1 << 31
	dramClkUpdate = 1 << 27
	dramClkSrc    = 0x7 << 24
	dramClkN      = 0x3 << 8
	dramClkM      = 0x3
	dramBGRReset  = 1 << 16
	dramBGRGate   = 1 << 0
	mbusReset     = 1 << 30
)

// Controller (MSI/MEMC) registers
const (
	memcBase    = 0x03102000
	workMode0   = memcBase + 0x000
	workMode1   = memcBase + 0x004
	memcUnk08   = memcBase + 0x008
	memcClkDiv  = memcBase + 0x00c
	memcUnk14   = memcBase + 0x014
	masterCtl1  = memcBase + 0x020
	acMap1      = memcBase + 0x500
	rank1Mode0  = 0x03202000
	rank1Mode1  = 0x03202004
	phyBase     = 0x03103000
	laneStride  = 0x80
	statusDone  = 1 << 0  // PGSR0 IDONE
	pgsr0Error  = 1 << 20 // PGSR0 training error
	pgsr0Gate   = 1 << 22 // PGSR0 DQS gate error
	resumeState = 1 << 16 // SOME_STATUS: resuming from super standby
)

// PHY register offsets
const (
	phyPIR      = 0x000
	phyPWRCTL   = 0x004
	phyCLKEN    = 0x00c
	phyPGSR0    = 0x010
	phySTATR    = 0x018
	phyLP3MR11  = 0x02c
	phyMR0      = 0x030
	phyPTR3     = 0x050
	phyPTR4     = 0x054
	phyDRAMTMG0 = 0x058
	phyODTCFG   = 0x07c
	phyPITMG0   = 0x080
	phyRFSHCTL0 = 0x08c
	phyRFSHTMG  = 0x090
	phyRFSHCTL1 = 0x094
	phyASRC     = 0x09c
	phyASRTC    = 0x0a0
	phyZQCRAlt  = 0x0b8
	phySSCG     = 0x0bc
	phyDTCR     = 0x0c0
	phyPGCR0    = 0x100
	phyMRCTRL0  = 0x108
	phyPGCR3    = 0x10c
	phyIOVCR0   = 0x110
	phyIOVCR1   = 0x114
	phyDXCCR    = 0x11c
	phyODTMAP   = 0x120
	phyZQCR     = 0x140
	phyACIOCR0  = 0x208
	phyDXIOCR   = 0x310
	phyDXExtra  = 0x334
	phyDXGCR0   = 0x344
	phyDXGSR0   = 0x348
)

// dataLane groups the registers of one byte lane
type dataLane struct {
	iocr  [9]core.Reg32
	extra [3]core.Reg32
	gcr0  core.Reg32
	gsr0  core.Reg32
}

// registers binds every register the bring-up touches to one bus
type registers struct {
	sysLDO, resCal, res240, sid     core.Reg32
	someStatus, someOther, pwroff   core.Reg32
	pllDDR, mbusClk, dramClk, dramBGR core.Reg32

	workMode  [2]core.Reg32
	rank1Mode [2]core.Reg32
	unk08     core.Reg32
	clkDiv    core.Reg32
	unk14     core.Reg32
	master    [3]core.Reg32
	acMap     [4]core.Reg32

	pir, pwrctl, clken, pgsr0, statr core.Reg32
	lp3mr11                          core.Reg32
	mr                               [4]core.Reg32
	ptr3, ptr4                       core.Reg32
	dramtmg                          [9]core.Reg32
	odtcfg, pitmg0                   core.Reg32
	rfshctl0, rfshtmg, rfshctl1      core.Reg32
	asrc, asrtc                      core.Reg32
	zqcrAlt, sscg, dtcr              core.Reg32
	pgcr0, mrctrl0, pgcr3            core.Reg32
	iovcr                            [2]core.Reg32
	dxccr, odtmap, zqcr, aciocr0     core.Reg32
	dx                               [2]dataLane

	phy core.Reg32 // PHY base, for the undocumented delay registers
}

func newRegisters(bus core.RegisterBus) registers {
	reg := func(addr uint32) core.Reg32 { return core.NewReg32(bus, addr) }
	phy := reg(phyBase)

	r := registers{
		sysLDO:     reg(sysLDOCtrl),
		resCal:     reg(resCalCtrl),
		res240:     reg(res240Ctrl),
		sid:        reg(sidInfo),
		someStatus: reg(someStatus),
		someOther:  reg(someOther),
		pwroff:     reg(analogPwroff),
		pllDDR:     reg(pllDDRCtrl),
		mbusClk:    reg(mbusClk),
		dramClk:    reg(dramClk),
		dramBGR:    reg(dramBGR),
		workMode:   [2]core.Reg32{reg(workMode0), reg(workMode1)},
		rank1Mode:  [2]core.Reg32{reg(rank1Mode0), reg(rank1Mode1)},
		unk08:      reg(memcUnk08),
		clkDiv:     reg(memcClkDiv),
		unk14:      reg(memcUnk14),
		pir:        phy.Offset(phyPIR),
		pwrctl:     phy.Offset(phyPWRCTL),
		clken:      phy.Offset(phyCLKEN),
		pgsr0:      phy.Offset(phyPGSR0),
		statr:      phy.Offset(phySTATR),
		lp3mr11:    phy.Offset(phyLP3MR11),
		ptr3:       phy.Offset(phyPTR3),
		ptr4:       phy.Offset(phyPTR4),
		odtcfg:     phy.Offset(phyODTCFG),
		pitmg0:     phy.Offset(phyPITMG0),
		rfshctl0:   phy.Offset(phyRFSHCTL0),
		rfshtmg:    phy.Offset(phyRFSHTMG),
		rfshctl1:   phy.Offset(phyRFSHCTL1),
		asrc:       phy.Offset(phyASRC),
		asrtc:      phy.Offset(phyASRTC),
		zqcrAlt:    phy.Offset(phyZQCRAlt),
		sscg:       phy.Offset(phySSCG),
		dtcr:       phy.Offset(phyDTCR),
		pgcr0:      phy.Offset(phyPGCR0),
		mrctrl0:    phy.Offset(phyMRCTRL0),
		pgcr3:      phy.Offset(phyPGCR3),
		iovcr:      [2]core.Reg32{phy.Offset(phyIOVCR0), phy.Offset(phyIOVCR1)},
		dxccr:      phy.Offset(phyDXCCR),
		odtmap:     phy.Offset(phyODTMAP),
		zqcr:       phy.Offset(phyZQCR),
		aciocr0:    phy.Offset(phyACIOCR0),
		phy:        phy,
	}
	for i := range r.master {
		r.master[i] = reg(masterCtl1 + 4*uint32(i))
	}
	for i := range r.acMap {
		r.acMap[i] = reg(acMap1 + 4*uint32(i))
	}
	for i := range r.mr {
		r.mr[i] = phy.Offset(phyMR0 + 4*uint32(i))
	}
	for i := range r.dramtmg {
		r.dramtmg[i] = phy.Offset(phyDRAMTMG0 + 4*uint32(i))
	}
	for n := range r.dx {
		lane := phy.Offset(laneStride * uint32(n))
		for i := range r.dx[n].iocr {
			r.dx[n].iocr[i] = lane.Offset(phyDXIOCR + 4*uint32(i))
		}
		for i := range r.dx[n].extra {
			r.dx[n].extra[i] = lane.Offset(phyDXExtra + 4*uint32(i))
		}
		r.dx[n].gcr0 = lane.Offset(phyDXGCR0)
		r.dx[n].gsr0 = lane.Offset(phyDXGSR0)
	}
	return r
}
