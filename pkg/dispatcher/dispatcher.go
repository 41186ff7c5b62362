// Package dispatcher implements the request dispatcher from spec §4.8:
// decode request, route to a core operation, emit ok/error response,
// drive Manager.Loop once per cycle, and surface any rotated runtime
// fault as an unsolicited (id=0) error response. Grounded in the
// original firmware's API.cpp request switch, and in the teacher's
// pkg/engine.Engine read/process/write cycle (the single-goroutine
// Run(ctx) loop wrapping each iteration in an otel span).
package dispatcher

import (
	"context"
	"io"
	"time"

	"github.com/user/cistern/internal/observability"
	"github.com/user/cistern/pkg/manager"
	"github.com/user/cistern/pkg/persist"
	"github.com/user/cistern/pkg/watertank"
	"github.com/user/cistern/pkg/wire"
	"github.com/user/cistern/pkg/xerr"
)

// Logger is the narrow logging surface the dispatcher needs; see
// cistern.Logger for the full interface the daemon wires in.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Dispatcher owns the Manager, the exception channel, and the framing
// state for one serial link.
type Dispatcher struct {
	mgr        *manager.Manager
	exceptions *xerr.Channel
	log        *persist.Log
	logger     Logger
	reader     *wire.Reader
}

// New wires a Dispatcher against mgr, exceptions, and an optional
// persistence log (nil disables save/reset-to-disk; reset() still
// clears in-memory state).
func New(mgr *manager.Manager, exceptions *xerr.Channel, log *persist.Log, logger Logger) *Dispatcher {
	return &Dispatcher{
		mgr:        mgr,
		exceptions: exceptions,
		log:        log,
		logger:     logger,
		reader:     wire.NewReader(),
	}
}

// Boot replays the persistence log through Handle, exactly like spec
// §4.6's boot replay — decoded records are dispatched as if they were
// incoming requests. A CRC mismatch clears the log and returns the
// SAVE_CORRUPTED fault to the caller instead of panicking the daemon.
func (d *Dispatcher) Boot() error {
	if d.log == nil {
		return nil
	}
	err := d.log.Replay(func(req *wire.Request) error {
		resp := d.Handle(req)
		if resp.IsError() {
			observability.BootReplayRecords.Inc()
			return xerr.New(severityFromErrorType(resp.ErrorType), xerr.Kind(resp.ErrorMessage))
		}
		observability.BootReplayRecords.Inc()
		return nil
	})
	if err != nil {
		_ = d.log.Clear()
		return err
	}
	return nil
}

func severityFromErrorType(t wire.ErrorType) xerr.Severity {
	switch t {
	case wire.ErrRuntimeError:
		return xerr.Runtime
	case wire.ErrInvalidRequest:
		return xerr.InvalidRequest
	default:
		return xerr.Generic
	}
}

// Handle routes one decoded request to the Manager and builds the
// response, per the request repertoire in spec §6.
func (d *Dispatcher) Handle(req *wire.Request) *wire.Response {
	resp := &wire.Response{ID: req.ID}

	var err error
	switch req.Type {
	case wire.CreateWaterSource:
		_, err = d.mgr.RegisterWaterSource(req.Name, int(req.Pin), req.WaterTankName)

	case wire.CreateWaterTank:
		cal := watertank.Calibration{
			PressureFactor:        req.PressureFactor,
			VolumeFactor:          req.VolumeFactor,
			ZeroVolumePressure:    req.ZeroVolumePressure,
			PressureChangingValue: req.PressureChangingValue,
			MinimumVolume:         req.MinimumVolume,
			MaxVolume:             req.MaxVolume,
		}
		_, err = d.mgr.RegisterWaterTank(req.Name, int(req.Pin), cal, req.WaterSourceName)

	case wire.RemoveWaterSource:
		err = d.mgr.UnregisterWaterSource(req.WaterSourceName)

	case wire.RemoveWaterTank:
		err = d.mgr.UnregisterWaterTank(req.WaterTankName)

	case wire.SetWaterSourceState:
		err = d.mgr.SetWaterSourceState(req.WaterSourceName, req.State, req.Force)

	case wire.SetWaterSourceActive:
		err = d.mgr.SetWaterSourceActive(req.WaterSourceName, req.Active)

	case wire.SetWaterTankMinimumVolume:
		err = withTank(d.mgr, req.WaterTankName, func(t tankSetter) error { return t.SetMinimumVolume(req.MinimumVolume) })

	case wire.SetWaterTankMaxVolume:
		err = withTank(d.mgr, req.WaterTankName, func(t tankSetter) error { return t.SetMaxVolume(req.MaxVolume) })

	case wire.SetWaterTankZeroVolumePressure:
		err = withTank(d.mgr, req.WaterTankName, func(t tankSetter) error {
			t.SetZeroVolumePressure(req.ZeroVolumePressure)
			return nil
		})

	case wire.SetWaterTankVolumeFactor:
		err = withTank(d.mgr, req.WaterTankName, func(t tankSetter) error {
			t.SetVolumeFactor(req.VolumeFactor)
			return nil
		})

	case wire.SetWaterTankPressureFactor:
		err = withTank(d.mgr, req.WaterTankName, func(t tankSetter) error {
			t.SetPressureFactor(req.PressureFactor)
			return nil
		})

	case wire.SetWaterTankPressureChangingValue:
		err = withTank(d.mgr, req.WaterTankName, func(t tankSetter) error {
			t.SetPressureChangingValue(req.PressureChangingValue)
			return nil
		})

	case wire.SetWaterTankActive:
		err = d.mgr.SetWaterTankActive(req.WaterTankName, req.Active)

	case wire.FillWaterTank:
		if req.Enabled {
			err = d.mgr.FillWaterTank(req.WaterTankName, req.Force)
		} else {
			err = d.mgr.StopFillingWaterTank(req.WaterTankName)
		}

	case wire.SetMode:
		if req.Mode == 1 {
			d.mgr.SetMode(manager.Auto)
		} else {
			d.mgr.SetMode(manager.Manual)
		}

	case wire.GetMode:
		if d.mgr.Mode() == manager.Auto {
			resp.Mode = 1
		}

	case wire.GetWaterSource:
		err = d.fillWaterSourceResponse(resp, req.Name)

	case wire.GetWaterTank:
		err = d.fillWaterTankResponse(resp, req.Name)

	case wire.GetWaterSourceList:
		resp.Names = d.mgr.WaterSourceNames()

	case wire.GetWaterTankList:
		resp.Names = d.mgr.WaterTankNames()

	case wire.Save:
		if d.log == nil {
			err = xerr.Invalid(xerr.FailedToSave)
		} else {
			err = d.log.Save(d.mgr)
		}

	case wire.Reset:
		d.mgr.Reset()
		if d.log != nil {
			err = d.log.Clear()
		}

	default:
		err = xerr.Invalid(xerr.InvalidOperationMode)
	}

	if err != nil {
		fault, ok := err.(*xerr.Fault)
		if !ok {
			fault = xerr.New(xerr.Generic, xerr.Kind(err.Error()))
		}
		resp.ErrorType = errorTypeFor(fault.Severity)
		resp.ErrorMessage = string(fault.Kind)
		resp.ErrorArg = fault.Arg
	}
	return resp
}

// tankSetter is the subset of *watertank.WaterTank the dispatcher's
// calibration setters need.
type tankSetter interface {
	SetMinimumVolume(float64) error
	SetMaxVolume(float64) error
	SetZeroVolumePressure(float64)
	SetVolumeFactor(float64)
	SetPressureFactor(float64)
	SetPressureChangingValue(float64)
}

func withTank(m *manager.Manager, name string, f func(tankSetter) error) error {
	t, err := m.GetWaterTank(name)
	if err != nil {
		return err
	}
	return f(t)
}

func (d *Dispatcher) fillWaterSourceResponse(resp *wire.Response, name string) error {
	s, err := d.mgr.GetWaterSource(name)
	if err != nil {
		return err
	}
	resp.Name = name
	resp.Active = s.Active()
	resp.State = s.IsTurnedOn()
	if pin, ok := d.mgr.SourcePin(name); ok {
		resp.Pin = uint32(pin)
	}
	if supply, ok := d.mgr.SourceSupplyName(name); ok {
		resp.WaterTankName = supply
	}
	return nil
}

func (d *Dispatcher) fillWaterTankResponse(resp *wire.Response, name string) error {
	t, err := d.mgr.GetWaterTank(name)
	if err != nil {
		return err
	}
	cal := t.Calibration()
	resp.Name = name
	resp.Active = t.Active()
	resp.VolumeFactor = cal.VolumeFactor
	resp.PressureFactor = cal.PressureFactor
	resp.PressureChangingValue = cal.PressureChangingValue
	resp.MinimumVolume = cal.MinimumVolume
	resp.MaxVolume = cal.MaxVolume
	resp.ZeroVolumePressure = cal.ZeroVolumePressure
	if pin, ok := d.mgr.TankPin(name); ok {
		resp.Pin = uint32(pin)
	}
	if src, ok := d.mgr.TankSourceName(name); ok {
		resp.WaterSourceName = src
	}
	return nil
}

func errorTypeFor(sev xerr.Severity) wire.ErrorType {
	switch sev {
	case xerr.Runtime:
		return wire.ErrRuntimeError
	case xerr.InvalidRequest:
		return wire.ErrInvalidRequest
	default:
		return wire.ErrException
	}
}

// Run drives the read/process/write cycle of spec §4.8 on a single
// goroutine until ctx is cancelled: feed bytes from r into the
// incremental reader, dispatch complete frames, write the response to
// w, call Manager.Loop, and emit an unsolicited (id=0) error response
// if Loop surfaced a runtime fault. now lets tests supply a fake clock
// instead of time.Now for truncation timing. Since r.Read blocks, a
// partial frame left pending past the reader's ReadTimeout is reported
// as truncated when the next byte arrives; that byte starts a new frame.
func (d *Dispatcher) Run(ctx context.Context, r io.Reader, w io.Writer, now func() time.Time) error {
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if n == 0 {
			continue
		}

		t := now()
		if d.reader.Truncated(t) {
			resp := &wire.Response{ID: 0, ErrorType: wire.ErrException, ErrorMessage: "Truncated message received"}
			if err := writeResponse(w, resp); err != nil {
				return err
			}
		}
		d.reader.Feed(buf[0], t)

		if d.reader.Ready() {
			frame := d.reader.Take()
			var req wire.Request
			if err := req.Unmarshal(frame.Payload); err != nil {
				resp := &wire.Response{ID: 0, ErrorType: wire.ErrException, ErrorMessage: "malformed request"}
				if err := writeResponse(w, resp); err != nil {
					return err
				}
			} else {
				observability.RequestsHandled.WithLabelValues(requestTypeLabel(req.Type)).Inc()
				resp := d.Handle(&req)
				if resp.IsError() {
					observability.RequestErrors.WithLabelValues(requestTypeLabel(req.Type), resp.ErrorMessage).Inc()
				}
				if err := writeResponse(w, resp); err != nil {
					return err
				}
			}
		}

		d.Tick(w)
	}
}

// Tick runs one Manager.Loop cycle and, if a runtime fault was
// rotated onto the exception channel, writes it as an unsolicited
// (id=0) error response.
func (d *Dispatcher) Tick(w io.Writer) error {
	start := time.Now()
	d.mgr.Loop()
	observability.ManagerLoopDuration.Observe(time.Since(start).Seconds())
	observability.RegisteredWaterTanks.Set(float64(d.mgr.TotalWaterTanks()))
	observability.RegisteredWaterSources.Set(float64(d.mgr.TotalWaterSources()))

	if fault := d.exceptions.Pop(); fault != nil {
		observability.RuntimeFaultsRaised.WithLabelValues(string(fault.Kind), fault.Arg).Inc()
		resp := &wire.Response{
			ID:           0,
			ErrorType:    errorTypeFor(fault.Severity),
			ErrorMessage: string(fault.Kind),
			ErrorArg:     fault.Arg,
		}
		return writeResponse(w, resp)
	}
	return nil
}

func writeResponse(w io.Writer, resp *wire.Response) error {
	payload, err := resp.Marshal()
	if err != nil {
		return err
	}
	return wire.WriteFrame(w, wire.MessageAPI, payload)
}

func requestTypeLabel(t wire.RequestType) string {
	switch t {
	case wire.CreateWaterSource:
		return "create_water_source"
	case wire.CreateWaterTank:
		return "create_water_tank"
	case wire.RemoveWaterSource:
		return "remove_water_source"
	case wire.RemoveWaterTank:
		return "remove_water_tank"
	case wire.SetWaterSourceState:
		return "set_water_source_state"
	case wire.SetWaterSourceActive:
		return "set_water_source_active"
	case wire.FillWaterTank:
		return "fill_water_tank"
	case wire.SetMode:
		return "set_mode"
	case wire.GetMode:
		return "get_mode"
	case wire.GetWaterSource:
		return "get_water_source"
	case wire.GetWaterTank:
		return "get_water_tank"
	case wire.GetWaterSourceList:
		return "get_water_source_list"
	case wire.GetWaterTankList:
		return "get_water_tank_list"
	case wire.Save:
		return "save"
	case wire.Reset:
		return "reset"
	default:
		return "set_water_tank_field"
	}
}
