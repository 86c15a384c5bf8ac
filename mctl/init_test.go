package mctl

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestAutoscanDiscoversTopology(t *testing.T) {
	s := newSimSoC()
	c := newSimController(s, Options{})
	p := LicheeRVParams()

	res, err := c.InitDRAM(p)
	if err != nil {
		t.Fatalf("InitDRAM: %v", err)
	}
	if res.SizeMB != 512 {
		t.Errorf("size = %d MB, want 512", res.SizeMB)
	}
	if p.Para1 != 0x000010e4 {
		t.Errorf("para1 = %#08x, want 0x10e4", p.Para1)
	}
	if p.Para2 != 512<<16 {
		t.Errorf("para2 = %#08x, want size in upper half", p.Para2)
	}
	if p.TPR[13] != 0x34056103 {
		t.Errorf("tpr13 = %#08x, want resolved flags", p.TPR[13])
	}

	want := []Stage{StageZQ, StageVoltage, StageRankWidth, StageSizeScan, StageFinal, StageSize, StageSelfTest}
	if !reflect.DeepEqual(res.Stages.All(), want) {
		t.Errorf("stages = %v, want %v", res.Stages.All(), want)
	}
	if res.SelfTest != SelfTestPassed {
		t.Errorf("self-test %v: %v", res.SelfTest, res.SelfTestErr)
	}
	if res.Remap != RemapCFG7 {
		t.Errorf("remap = %v, want cfg7", res.Remap)
	}
	if res.ClockMHz != 792 {
		t.Errorf("clock = %d", res.ClockMHz)
	}

	// the final pass programs the discovered geometry
	if got := s.Peek(workMode0); got != 0x004319d4 {
		t.Errorf("WORK_MODE0 = %#08x, want 0x004319d4", got)
	}
}

func TestResolvedParamsSkipScan(t *testing.T) {
	p := LicheeRVParams()
	if mb := newSimController(newSimSoC(), Options{}).Init(p); mb != 512 {
		t.Fatalf("first init = %d MB", mb)
	}

	s := newSimSoC()
	c := newSimController(s, Options{})
	res, err := c.InitDRAM(p)
	if err != nil {
		t.Fatalf("re-init: %v", err)
	}
	for _, st := range res.Stages.All() {
		if st == StageRankWidth || st == StageSizeScan {
			t.Errorf("re-init ran %v", st)
		}
	}
	if res.SizeMB != 512 {
		t.Errorf("re-init size %d", res.SizeMB)
	}
}

func TestRawTimingRoundTrip(t *testing.T) {
	derived := newSimSoC()
	p := NezhaParams()
	if _, err := newSimController(derived, Options{}).InitDRAM(p); err != nil {
		t.Fatalf("derived init: %v", err)
	}

	raw := newSimSoC()
	q := NezhaParams()
	q.TPR[0], q.TPR[1], q.TPR[2] = p.TPR[0], p.TPR[1], p.TPR[2]
	q.TPR[13] |= uint32(FlagRawTiming)
	res, err := newSimController(raw, Options{}).InitDRAM(q)
	if err != nil {
		t.Fatalf("raw init: %v", err)
	}
	if stages := res.Stages.All(); len(stages) < 3 || stages[2] != StageFinal {
		t.Errorf("raw init stages %v", stages)
	}

	for off := uint32(phyMR0); off <= phyRFSHCTL1; off += 4 {
		if a, b := derived.Peek(phyBase+off), raw.Peek(phyBase+off); a != b {
			t.Errorf("PHY+%#03x: derived %#08x, raw %#08x", off, a, b)
		}
	}
}

func TestTimingRegistersDDR3(t *testing.T) {
	s := newSimSoC()
	if _, err := newSimController(s, Options{}).InitDRAM(NezhaParams()); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		off  uint32
		want uint32
	}{
		{"MR2", phyMR0 + 8, 24},
		{"DRAMTMG0", phyDRAMTMG0, 0x0a141a10},
		{"DRAMTMG1", phyDRAMTMG0 + 4, 0x00040415},
		{"DRAMTMG2", phyDRAMTMG0 + 8, 0x04060508},
		{"DRAMTMG3", phyDRAMTMG0 + 12, 0x0000400c},
		{"DRAMTMG4", phyDRAMTMG0 + 16, 0x06020406},
		{"DRAMTMG5", phyDRAMTMG0 + 20, 0x05050403},
		{"DRAMTMG8", phyDRAMTMG0 + 32, 0xf0006610},
		{"PITMG0", phyPITMG0, 0x02040102},
		{"PTR3", phyPTR3, 0x11e60ae1},
		{"PTR4", phyPTR4, 0x31926ac1},
		{"RFSHTMG", phyRFSHTMG, 0x0061008b},
		{"RFSHCTL1", phyRFSHCTL1, 0x00300000},
	}
	for _, tt := range tests {
		if got := s.Peek(phyBase + tt.off); got != tt.want {
			t.Errorf("%s = %#08x, want %#08x", tt.name, got, tt.want)
		}
	}
}

func TestPIRSequence(t *testing.T) {
	tests := []struct {
		name   string
		params func() *Params
		resume bool
		want   []uint32
	}{
		{"cold ddr3", NezhaParams, false, []uint32{0x1f2, 0x1f3}},
		{"resume", NezhaParams, true, []uint32{0x62, 0x63}},
		{"dqs mode 1", func() *Params {
			p := NezhaParams()
			p.TPR[13] |= 0x4
			return p
		}, false, []uint32{0x52, 0x53, 0x5a0, 0x5a1}},
		{"dqs mode 1 ddr2", func() *Params {
			p := NezhaParams()
			p.Type = DDR2
			p.TPR[13] |= 0x4 | uint32(FlagRawTiming)
			return p
		}, false, []uint32{0x52, 0x53, 0x520, 0x521}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSimSoC()
			if tt.resume {
				s.MemoryBus.Write32(someStatus, resumeState)
			}
			if _, err := newSimController(s, Options{}).InitDRAM(tt.params()); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(s.pirWrites, tt.want) {
				t.Errorf("PIR writes %#x, want %#x", s.pirWrites, tt.want)
			}
		})
	}
}

func TestTrainingErrorFails(t *testing.T) {
	s := newSimSoC()
	s.pgsr0 = pgsr0Error
	c := newSimController(s, Options{})
	p := NezhaParams()

	if mb := c.Init(p); mb != 0 {
		t.Errorf("Init = %d, want 0", mb)
	}
	_, err := c.InitDRAM(p)
	if !errors.Is(err, ErrZQCalibration) {
		t.Fatalf("err = %v, want ZQ calibration", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageChannel {
		t.Errorf("stage error %v", err)
	}
}

func TestPLLTimeout(t *testing.T) {
	s := newSimSoC()
	s.OnRead(pllDDRCtrl, func(v uint32) uint32 { return v &^ pllLock })
	c := newSimController(s, Options{PollTimeoutUS: 1000})

	_, err := c.InitDRAM(NezhaParams())
	if !IsTimeout(err) {
		t.Fatalf("err = %v, want timeout", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageSysInit {
		t.Errorf("stage error %v", err)
	}
}

func TestRankWidthDetectionError(t *testing.T) {
	s := newSimSoC()
	s.setLanes(1, 1)
	p := LicheeRVParams()
	flags, para1 := p.TPR[13], p.Para1

	_, err := newSimController(s, Options{}).InitDRAM(p)
	if !errors.Is(err, ErrRankWidthDetection) {
		t.Fatalf("err = %v", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageRankWidth {
		t.Errorf("stage error %v", err)
	}
	if p.TPR[13] != flags || p.Para1 != para1 {
		t.Errorf("scan settings leaked: tpr13 %#x para1 %#x", p.TPR[13], p.Para1)
	}
}

func TestDetectDQSGate(t *testing.T) {
	tests := []struct {
		name     string
		gate     bool
		dx0, dx1 uint32
		para2    uint32
		wantErr  bool
	}{
		{"dual rank full DQ", false, 0, 0, 0x1000, false},
		{"single rank full DQ", true, 2, 2, 0x0000, false},
		{"single rank half DQ", true, 2, 0, 0x0001, false},
		{"dual rank half DQ", true, 0, 3, 0x1001, false},
		{"bad lane code", true, 1, 2, 0x1000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSimSoC()
			if !tt.gate {
				s.OnRead(phyBase+phyPGSR0, func(uint32) uint32 { return statusDone })
			}
			s.setLanes(tt.dx0, tt.dx1)
			c := newSimController(s, Options{})

			p := &Params{Para2: 0x1000}
			err := c.detectDQSGate(p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if p.Para2 != tt.para2 {
				t.Errorf("para2 = %#x, want %#x", p.Para2, tt.para2)
			}
		})
	}
}

func TestSelfTestDetectsAliasing(t *testing.T) {
	s := newSimSoC()
	c := newSimController(s, Options{})
	if _, err := c.InitDRAM(NezhaParams()); err != nil {
		t.Fatal(err)
	}
	if err := c.SelfTest(512, 64); err != nil {
		t.Errorf("512MB self-test: %v", err)
	}
	// the configured geometry has no address line at 512MB, so the upper
	// pattern lands on the lower one
	if err := c.SelfTest(1024, 64); !errors.Is(err, ErrSelfTest) {
		t.Errorf("1GB self-test err = %v", err)
	}
}

func TestSelfTestPolicy(t *testing.T) {
	oversized := func() *Params {
		p := NezhaParams()
		p.Para2 = 1<<31 | 1024<<16
		return p
	}

	res, err := newSimController(newSimSoC(), Options{SelfTestWords: 64}).InitDRAM(oversized())
	if err != nil {
		t.Fatalf("report policy: %v", err)
	}
	if res.SizeMB != 1024 || res.SelfTest != SelfTestFailed || !errors.Is(res.SelfTestErr, ErrSelfTest) {
		t.Errorf("report policy result %+v", res)
	}

	_, err = newSimController(newSimSoC(), Options{SelfTestWords: 64, SelfTestPolicy: SelfTestStrict}).InitDRAM(oversized())
	if !errors.Is(err, ErrSelfTest) {
		t.Errorf("strict policy err = %v", err)
	}
}

func TestResumeSkipsSelfTest(t *testing.T) {
	s := newSimSoC()
	s.MemoryBus.Write32(someStatus, resumeState)

	res, err := newSimController(s, Options{}).InitDRAM(NezhaParams())
	if err != nil {
		t.Fatal(err)
	}
	if res.SelfTest != SelfTestSkipped || !errors.Is(res.SelfTestErr, ErrResumeSelfTest) {
		t.Errorf("self-test %v %v", res.SelfTest, res.SelfTestErr)
	}
	if len(s.cells) != 0 {
		t.Errorf("resume wrote %d DRAM cells", len(s.cells))
	}

	_, err = newSimController(s, Options{SelfTestPolicy: SelfTestStrict}).InitDRAM(NezhaParams())
	if !errors.Is(err, ErrResumeSelfTest) {
		t.Errorf("strict resume err = %v", err)
	}
}

type fakeRegulator struct {
	mV  []uint32
	err error
}

func (f *fakeRegulator) SetDRAMVoltage(mV uint32) error {
	f.mV = append(f.mV, mV)
	return f.err
}

func TestVoltage(t *testing.T) {
	s := newSimSoC()
	s.MemoryBus.Write32(sysLDOCtrl, 0x0020ff00|0x5)
	if _, err := newSimController(s, Options{}).InitDRAM(NezhaParams()); err != nil {
		t.Fatal(err)
	}
	if got := s.Peek(sysLDOCtrl); got != 25<<8|0x5 {
		t.Errorf("SYS_LDO = %#x", got)
	}

	reg := &fakeRegulator{}
	if _, err := newSimController(newSimSoC(), Options{Regulator: reg}).InitDRAM(NezhaParams()); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(reg.mV, []uint32{1500}) {
		t.Errorf("regulator calls %v", reg.mV)
	}

	reg = &fakeRegulator{err: errors.New("i2c nack")}
	_, err := newSimController(newSimSoC(), Options{Regulator: reg}).InitDRAM(NezhaParams())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageVoltage {
		t.Errorf("regulator failure: %v", err)
	}
}

func TestStandbyHookRunsLast(t *testing.T) {
	s := newSimSoC()
	var mastersOpen bool
	opts := Options{Standby: func() { mastersOpen = s.Peek(masterCtl1) == 0xffffffff }}
	if _, err := newSimController(s, opts).InitDRAM(NezhaParams()); err != nil {
		t.Fatal(err)
	}
	if !mastersOpen {
		t.Error("standby hook ran before masters were enabled")
	}
}

func TestFinishFlags(t *testing.T) {
	s := newSimSoC()
	p := NezhaParams()
	p.TPR[13] |= uint32(FlagAutoSelfRefresh | FlagPGCR0Override)
	if _, err := newSimController(s, Options{}).InitDRAM(p); err != nil {
		t.Fatal(err)
	}
	if s.Peek(phyBase+phyASRTC) != 0x10000200 || s.Peek(phyBase+phyASRC) != 0x40a {
		t.Errorf("auto self-refresh not programmed")
	}
	if s.pwrctl&1 == 0 {
		t.Error("PWRCTL self-refresh enable not set")
	}
	if s.Peek(phyBase+phyPGCR0)&0xf000 != 0x5000 {
		t.Errorf("PGCR0 = %#x", s.Peek(phyBase+phyPGCR0))
	}
	// Nezha uses the internal ZQ reference
	if s.Peek(phyBase+phyMRCTRL0)&0x2000 != 0 {
		t.Error("MRCTRL0 bit 13 set with internal ZQ")
	}
	if s.Peek(phyBase+phyZQCRAlt) != s.Peek(phyBase+phyZQCR)|0x300 {
		t.Error("extra ZQ write missing")
	}
}

func TestUnknownTypeRejected(t *testing.T) {
	for _, raw := range []bool{false, true} {
		t.Run(fmt.Sprintf("raw=%v", raw), func(t *testing.T) {
			s := newSimSoC()
			p := NezhaParams()
			p.Type = 5
			if raw {
				p.TPR[13] |= uint32(FlagRawTiming)
			}

			res, err := newSimController(s, Options{AllowFallbackTiming: true}).InitDRAM(p)
			if !errors.Is(err, ErrUnsupportedType) {
				t.Fatalf("err = %v, want unsupported type", err)
			}
			var se *StageError
			if !errors.As(err, &se) || se.Stage != StageParams {
				t.Errorf("stage error %v", err)
			}
			if res.Stages.Len() != 0 || len(s.pirWrites) != 0 {
				t.Errorf("ran %v and wrote PIR %#x", res.Stages.All(), s.pirWrites)
			}
		})
	}
}

func TestStageErrorReused(t *testing.T) {
	c := newSimController(newSimSoC(), Options{})
	err := c.fail(StageChannel, ErrZQCalibration)
	if again := c.fail(StageFinal, err); again != err {
		t.Errorf("wrapped twice: %v", again)
	}
	if allocs := testing.AllocsPerRun(10, func() {
		_ = c.fail(StageSizeScan, ErrHardwareTimeout)
	}); allocs != 0 {
		t.Errorf("fail allocates %v times", allocs)
	}

	var l StageLog
	for i := 0; i < maxStages+3; i++ {
		l.add(StageSize)
	}
	if l.Len() != maxStages {
		t.Errorf("log holds %d stages", l.Len())
	}
	if last, ok := (StageLog{}).Last(); ok {
		t.Errorf("empty log last = %v", last)
	}
}
