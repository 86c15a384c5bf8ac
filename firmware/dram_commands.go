package firmware

import (
	"errors"

	"github.com/YuzukiHD/SyterKit/core"
	"github.com/YuzukiHD/SyterKit/mctl"
	"github.com/YuzukiHD/SyterKit/protocol"
)

func registerDRAMCommands() {
	core.RegisterCommand("dram_get_param", "index=%c", handleDRAMGetParam)
	core.RegisterCommand("dram_set_param", "index=%c value=%u", handleDRAMSetParam)
	core.RegisterCommand("dram_init", "", handleDRAMInit)
	core.RegisterCommand("dram_status", "", handleDRAMStatus)
	core.RegisterCommand("dram_selftest", "words=%u", handleDRAMSelfTest)

	core.RegisterResponse("dram_param", "index=%c value=%u status=%c")
	core.RegisterResponse("dram_result", "status=%c size_mb=%u clock=%u stage=%c remap=%c selftest=%c")
	core.RegisterResponse("dram_state", "ready=%c size_mb=%u para1=%u para2=%u tpr13=%u")
	core.RegisterResponse("selftest_result", "status=%c size_mb=%u")
}

func sendParam(index, value uint32, st Status) {
	core.SendResponse("dram_param", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, index)
		protocol.EncodeVLQUint(output, value)
		protocol.EncodeVLQUint(output, uint32(st))
	})
}

func handleDRAMGetParam(data *[]byte) error {
	index, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	s := active
	s.mu.Lock()
	v, err := s.params.Word(int(index))
	s.mu.Unlock()

	sendParam(index, v, StatusOf(err))
	return nil
}

// handleDRAMSetParam replaces one parameter word. The block is locked
// once DRAM is up: the running configuration must match what was trained.
func handleDRAMSetParam(data *[]byte) error {
	args, err := protocol.DecodeVLQUints(data, 2)
	if err != nil {
		return err
	}
	index, value := args[0], args[1]

	s := active
	s.mu.Lock()
	var st Status
	if s.ready {
		st = StatusDenied
	} else if err := s.params.SetWord(int(index), value); err != nil {
		st = StatusOf(err)
		if st == StatusUnsupported || st == StatusFailed {
			st = StatusBadParam
		}
	}
	v, _ := s.params.Word(int(index))
	s.mu.Unlock()

	sendParam(index, v, st)
	return nil
}

func handleDRAMInit(data *[]byte) error {
	s := active
	s.mu.Lock()
	var (
		res mctl.Result
		err error
	)
	if s.ready {
		// a second training pass would clobber whatever was loaded
		res, err = s.result, nil
	} else {
		res, err = s.initDRAM()
	}
	s.mu.Unlock()

	var stage mctl.Stage
	var se *mctl.StageError
	if errors.As(err, &se) {
		stage = se.Stage
	} else if last, ok := res.Stages.Last(); ok {
		stage = last
	}

	core.SendResponse("dram_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(StatusOf(err)))
		protocol.EncodeVLQUint(output, res.SizeMB)
		protocol.EncodeVLQUint(output, res.ClockMHz)
		protocol.EncodeVLQUint(output, uint32(stage))
		protocol.EncodeVLQUint(output, uint32(res.Remap))
		protocol.EncodeVLQUint(output, uint32(res.SelfTest))
	})
	return nil
}

func handleDRAMStatus(data *[]byte) error {
	s := active
	s.mu.Lock()
	ready := s.ready
	size := s.result.SizeMB
	p := *s.params
	s.mu.Unlock()

	core.SendResponse("dram_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, boolWord(ready))
		protocol.EncodeVLQUint(output, size)
		protocol.EncodeVLQUint(output, p.Para1)
		protocol.EncodeVLQUint(output, p.Para2)
		protocol.EncodeVLQUint(output, p.TPR[13])
	})
	return nil
}

// handleDRAMSelfTest reruns the pattern test over the live part. Whatever
// the test overwrites is lost.
func handleDRAMSelfTest(data *[]byte) error {
	words, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if words == 0 {
		words = mctl.DefaultSelfTestWords
	}

	s := active
	s.mu.Lock()
	size := s.result.SizeMB
	st := StatusNotReady
	if s.ready {
		st = StatusOf(s.ctrl.SelfTest(size, words))
	}
	s.mu.Unlock()

	core.SendResponse("selftest_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(st))
		protocol.EncodeVLQUint(output, size)
	})
	return nil
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
