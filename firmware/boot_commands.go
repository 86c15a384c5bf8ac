package firmware

import (
	"context"
	"log/slog"

	"github.com/YuzukiHD/SyterKit/core"
	"github.com/YuzukiHD/SyterKit/protocol"
)

func registerBootCommands() {
	core.RegisterCommand("boot", "entry=%u mode=%c info=%u", handleBoot)
	core.RegisterResponse("boot_status", "entry=%u status=%c")
}

// handleBoot accepts a hand-off into loaded DRAM. The jump itself waits
// for CheckPendingBoot so the ACK and status leave first.
func handleBoot(data *[]byte) error {
	args, err := protocol.DecodeVLQUints(data, 3)
	if err != nil {
		return err
	}
	entry, mode, info := args[0], args[1], args[2]

	s := active
	s.mu.Lock()
	st := StatusNotReady
	if w, ok := s.dramWindow(); ok {
		st = StatusDenied
		if w.Contains(entry, 4) && w.Contains(info, 4) && s.boot != nil {
			s.pendingBoot = &bootRequest{entry: entry, mode: mode, info: info}
			st = StatusOK
		}
	}
	s.mu.Unlock()

	core.SendResponse("boot_status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, entry)
		protocol.EncodeVLQUint(output, uint32(st))
	})
	return nil
}

// CheckPendingBoot runs an accepted hand-off. Call it from the main loop
// after output is flushed; it reports whether a hand-off was attempted.
func CheckPendingBoot() bool {
	s := active
	if s == nil {
		return false
	}
	s.mu.Lock()
	req := s.pendingBoot
	s.pendingBoot = nil
	s.mu.Unlock()
	if req == nil {
		return false
	}

	core.RecordTrace(core.EvtHandoff, req.entry, req.info)
	if core.Enabled(s.log, slog.LevelInfo) {
		s.log.LogAttrs(context.Background(), slog.LevelInfo, "jumping",
			slog.Uint64("entry", uint64(req.entry)),
			slog.Uint64("mode", uint64(req.mode)),
			slog.Uint64("info", uint64(req.info)))
	}
	s.boot(req.entry, req.mode, req.info)
	return true
}
