package pmu

import "github.com/YuzukiHD/SyterKit/mctl"

// DefaultDRAMRail feeds VCC-DRAM on the D1 reference boards
const DefaultDRAMRail = "dcdc2"

// DRAMRegulator lets the DRAM controller drive one PMU rail
type DRAMRegulator struct {
	PMU  *AXP1530
	Rail string
}

var _ mctl.VoltageRegulator = DRAMRegulator{}

// SetDRAMVoltage sets and enables the bound rail
func (r DRAMRegulator) SetDRAMVoltage(mV uint32) error {
	rail := r.Rail
	if rail == "" {
		rail = DefaultDRAMRail
	}
	return r.PMU.SetVoltage(rail, mV, OutputOn)
}
