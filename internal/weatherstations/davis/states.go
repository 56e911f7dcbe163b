package davis

import (
	"time"

	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/vantage"
)

type state int

const (
	stateStartProcess state = iota
	stateRun
	stateDumpAfterRequest
	stateDumpAfterAck
	stateReceiveArchive
	stateLoopRequest
	stateReadRecover
	stateError
)

func (st state) String() string {
	switch st {
	case stateStartProcess:
		return "StartProcess"
	case stateRun:
		return "Run"
	case stateDumpAfterRequest:
		return "DumpAfterRequest"
	case stateDumpAfterAck:
		return "DumpAfterAck"
	case stateReceiveArchive:
		return "ReceiveArchive"
	case stateLoopRequest:
		return "LoopRequest"
	case stateReadRecover:
		return "ReadRecover"
	case stateError:
		return "Error"
	}
	return "unknown"
}

type stimulus int

const (
	stimStart stimulus = iota
	stimTimer
	stimIO
	stimReadings
	stimArchive
)

func (st stimulus) String() string {
	switch st {
	case stimStart:
		return "start"
	case stimTimer:
		return "timer"
	case stimIO:
		return "io"
	case stimReadings:
		return "readings"
	case stimArchive:
		return "archive"
	}
	return "unknown"
}

// dispatch runs the handler of the current state and moves to the state it
// returns. Callers hold mu.
func (s *Station) dispatch(st stimulus) {
	var next state
	switch s.state {
	case stateStartProcess:
		next = s.onStartProcess(st)
	case stateRun:
		next = s.onRun(st)
	case stateDumpAfterRequest:
		next = s.onDumpAfterRequest(st)
	case stateDumpAfterAck:
		next = s.onDumpAfterAck(st)
	case stateReceiveArchive:
		next = s.onReceiveArchive(st)
	case stateLoopRequest:
		next = s.onLoopRequest(st)
	case stateReadRecover:
		next = s.onReadRecover(st)
	case stateError:
		next = s.onError(st)
	}

	if next == s.state {
		return
	}
	s.logger.Debugf("state %s -> %s on %s", s.state, next, st)
	prev := s.state
	s.state = next
	s.metrics.DriverState.Set(float64(next))
	if next == stateError && prev != stateError {
		s.enterError()
	}
}

// fail logs err and selects the error state.
func (s *Station) fail(what string, err error) state {
	s.logger.Errorf("%s: %v", what, err)
	return stateError
}

// recoverRead arms the recovery timer after a failed read.
func (s *Station) recoverRead(what string, err error) state {
	s.logger.Warnf("%s: %v", what, err)
	s.startTimer(recoverInterval)
	return stateReadRecover
}

// startDump wakes the console and sends DMPAFT.
func (s *Station) startDump() state {
	if err := s.wakeup(); err != nil {
		return s.fail("DMPAFT wakeup", err)
	}
	if err := s.requestDumpAfter(); err != nil {
		return s.fail("DMPAFT request", err)
	}
	s.startTimer(s.responseTimeout())
	return stateDumpAfterRequest
}

// startLoop wakes the console and requests a single LOOP packet.
func (s *Station) startLoop() state {
	if err := s.wakeup(); err != nil {
		return s.fail("LOOP wakeup", err)
	}
	if err := s.requestLoop(); err != nil {
		return s.fail("LOOP request", err)
	}
	s.startTimer(s.responseTimeout())
	return stateLoopRequest
}

// afterDump continues with the LOOP the startup or a readings request is
// waiting for, or goes idle.
func (s *Station) afterDump() state {
	if s.doLoop {
		return s.startLoop()
	}
	return stateRun
}

func (s *Station) onStartProcess(st stimulus) state {
	switch st {
	case stimIO:
		s.medium.Flush()
		return stateStartProcess
	case stimStart:
	default:
		return stateStartProcess
	}

	if s.cfg.AlignStart {
		sec := s.clock.Now().Second()
		if sec > 50 || sec < 5 {
			if sec < 5 {
				sec += 60
			}
			wait := time.Duration(65-sec) * time.Second
			s.logger.Infof("starting too close to the top of the minute, waiting %v before continuing", wait)
			s.sleep(wait)
		}
	}

	if err := s.wakeupWithRetry(s.ctx, initialWakeupTries); err != nil {
		return s.fail("startup wakeup", err)
	}

	interval, err := s.archiveIntervalSetting()
	if err != nil {
		return s.fail("reading archive interval", err)
	}
	s.interval = interval
	if err := s.verifyArchiveInterval(); err != nil {
		s.logger.Error("move the old archive out of the way or fix the station setting")
		return s.fail("verifying archive interval", err)
	}
	s.logger.Infof("station archive interval: %d minutes", s.interval)

	collector, err := s.rainCollectorSetting()
	if err != nil {
		return s.fail("reading rain collector", err)
	}
	s.collector = collector
	s.logger.Infof("station rain ticks/inch: %.0f", collector.TicksPerInch)

	s.doLoop = true
	if s.cfg.LoopOnly {
		return s.startLoop()
	}
	return s.startDump()
}

func (s *Station) onRun(st stimulus) state {
	switch st {
	case stimReadings:
		s.doLoop = true
		if s.archiveRetry {
			return s.startDump()
		}
		if err := s.wakeup(); err != nil {
			s.logger.Warnf("readings wakeup: %v", err)
			return stateRun
		}
		if err := s.requestLoop(); err != nil {
			return s.fail("LOOP request", err)
		}
		s.startTimer(s.responseTimeout())
		return stateLoopRequest

	case stimArchive:
		if s.cfg.LoopOnly {
			return stateRun
		}
		s.archiveRetry = true
		if err := s.wakeup(); err != nil {
			s.sleep(time.Second)
			if err := s.wakeup(); err != nil {
				s.logger.Warnf("archive wakeup: %v", err)
				return stateRun
			}
		}
		if err := s.requestDumpAfter(); err != nil {
			return s.fail("DMPAFT request", err)
		}
		s.startTimer(s.responseTimeout())
		return stateDumpAfterRequest

	case stimIO:
		// Nothing is outstanding in Run.
		s.medium.Flush()
	}
	return stateRun
}

func (s *Station) onDumpAfterRequest(st stimulus) state {
	switch st {
	case stimTimer:
		if err := s.wakeup(); err != nil {
			s.logger.Warnf("DMPAFT retry wakeup: %v", err)
			return stateRun
		}
		if err := s.requestDumpAfter(); err != nil {
			return s.fail("DMPAFT request", err)
		}
		s.startTimer(s.responseTimeout())

	case stimIO:
		s.stopTimer()
		if err := s.getAck(time.Second); err != nil {
			return s.recoverRead("DMPAFT ack", err)
		}
		if err := s.sendDumpStart(); err != nil {
			return s.fail("DMPAFT start", err)
		}
		s.startTimer(2 * s.responseTimeout())
		return stateDumpAfterAck
	}
	return stateDumpAfterRequest
}

func (s *Station) onDumpAfterAck(st stimulus) state {
	switch st {
	case stimTimer:
		if err := s.sendByte(vantage.Cancel); err != nil {
			return s.fail("dump cancel", err)
		}
		if err := s.wakeup(); err != nil {
			s.logger.Warnf("dump start retry wakeup: %v", err)
			return stateRun
		}
		if err := s.sendDumpStart(); err != nil {
			return s.fail("DMPAFT start", err)
		}
		s.startTimer(2 * s.responseTimeout())

	case stimIO:
		s.stopTimer()
		hdr, err := s.readDumpHeader()
		if err != nil {
			return s.recoverRead("DMPAFT header", err)
		}
		s.pages, s.firstRecord, s.currentPage = int(hdr.Pages), int(hdr.FirstRecord), 0
		if s.pages > 0 {
			s.logger.Debugf("downloading %d pages from the console", s.pages)
			if err := s.sendByte(vantage.ACK); err != nil {
				return s.fail("dump ack", err)
			}
			s.startTimer(s.responseTimeout())
			return stateReceiveArchive
		}

		if err := s.sendByte(vantage.Cancel); err != nil {
			return s.fail("dump cancel", err)
		}
		return s.afterDump()
	}
	return stateDumpAfterAck
}

func (s *Station) onReceiveArchive(st stimulus) state {
	switch st {
	case stimTimer:
		s.logger.Error("timed out waiting for archive page from the console")
		if err := s.sendByte(vantage.Cancel); err != nil {
			return s.fail("dump cancel", err)
		}
		if !s.running {
			return s.startLoop()
		}
		return stateRun

	case stimIO:
		s.stopTimer()
		page, err := s.readPage()
		if err != nil {
			s.logger.Errorf("reading archive page: %v", err)
			s.sleep(50 * time.Millisecond)
			if err := s.sendByte(vantage.Cancel); err != nil {
				return s.fail("dump cancel", err)
			}
			s.sleep(50 * time.Millisecond)
			return s.afterDump()
		}
		s.processArchivePage(page)

		if s.currentPage < s.pages {
			s.startTimer(s.responseTimeout())
			return stateReceiveArchive
		}

		// Let the console finish sending anything pending.
		s.sleep(250 * time.Millisecond)
		if err := s.sendByte(vantage.Cancel); err != nil {
			return s.fail("dump cancel", err)
		}
		s.medium.Flush()

		if err := s.wakeup(); err != nil {
			s.logger.Warnf("post-dump wakeup: %v", err)
			return stateRun
		}
		if s.cfg.RxCheck {
			if err := s.rxCheck(); err != nil {
				s.logger.Warnf("RXCHECK: %v", err)
				s.sleep(time.Second)
			}
			s.sleep(250 * time.Millisecond)
		}
		return s.afterDump()
	}
	return stateReceiveArchive
}

func (s *Station) onLoopRequest(st stimulus) state {
	switch st {
	case stimTimer:
		if err := s.wakeup(); err != nil {
			s.logger.Warnf("LOOP retry wakeup: %v", err)
			return stateRun
		}
		if err := s.requestLoop(); err != nil {
			return s.fail("LOOP request", err)
		}
		s.startTimer(s.responseTimeout())

	case stimIO:
		s.stopTimer()
		raw, err := s.readLoop()
		if err != nil {
			return s.recoverRead("reading LOOP", err)
		}
		s.doLoop = false
		s.completeLoop(s.loopPacket(raw, s.clock.Now()))

		if s.timeSync.Load() {
			if err := s.synchronizeClock(); err != nil {
				s.logger.Errorf("synchronizing console clock: %v", err)
			} else {
				s.timeSync.Store(false)
			}
		}
		return stateRun
	}
	return stateLoopRequest
}

func (s *Station) completeLoop(p types.LoopPacket) {
	s.lastLoop, s.haveLoop = p, true
	s.metrics.LoopPackets.Inc()
	if !s.running {
		s.running = true
		s.metrics.StationUp.Set(1)
		s.logger.Info("station startup complete")
		s.emit(Event{Type: EventStationUp, Loop: &p})
		return
	}
	s.emit(Event{Type: EventReadingsDone, Loop: &p})
}

func (s *Station) onReadRecover(st stimulus) state {
	switch st {
	case stimTimer:
		if err := s.wakeup(); err != nil {
			s.metrics.RecoverAttempts.Inc()
			s.recoverTries++
			if s.recoverTries > maxRecoverTries {
				s.logger.Error("read recovery: max retries attempted, giving up")
				return stateError
			}
			s.startTimer(recoverInterval)
			return stateReadRecover
		}
		s.recoverTries = 0
		return stateRun

	case stimIO:
		s.medium.Flush()
	}
	return stateReadRecover
}

// enterError reports the failure once, restarts the medium and arms the
// back-off after which the handshake is redone.
func (s *Station) enterError() {
	s.stopTimer()
	if !s.errorReported {
		s.logger.Errorf("station entered the error state, restarting in %v", s.cfg.ErrorBackoff)
		s.errorReported = true
	}
	s.running = false
	s.metrics.StationUp.Set(0)
	s.emit(Event{Type: EventStationError})
	if err := s.medium.Restart(s.ctx); err != nil {
		s.logger.Errorf("restarting medium: %v", err)
	}
	s.startTimer(s.cfg.ErrorBackoff)
}

func (s *Station) onError(st stimulus) state {
	switch st {
	case stimIO:
		s.medium.Flush()
	case stimTimer:
		s.errorReported = false
		s.recoverTries = 0
		s.state = stateStartProcess
		return s.onStartProcess(stimStart)
	}
	return stateError
}
