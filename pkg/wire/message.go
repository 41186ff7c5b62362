package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// RequestType enumerates the request repertoire of spec §6. Values are
// the wire representation of field 2 (type) and are also used as the
// persisted record's discriminator in pkg/persist, since persisted
// records are just encoded requests of a subset of these types.
type RequestType uint32

const (
	CreateWaterSource RequestType = iota + 1
	CreateWaterTank
	RemoveWaterSource
	RemoveWaterTank
	SetWaterSourceState
	SetWaterSourceActive
	SetWaterTankMinimumVolume
	SetWaterTankMaxVolume
	SetWaterTankZeroVolumePressure
	SetWaterTankVolumeFactor
	SetWaterTankPressureFactor
	SetWaterTankPressureChangingValue
	SetWaterTankActive
	FillWaterTank
	SetMode
	GetMode
	GetWaterSource
	GetWaterTank
	GetWaterSourceList
	GetWaterTankList
	Save
	Reset
)

// field numbers, matching proto/cistern.proto.
const (
	fieldID                         = 1
	fieldType                       = 2
	fieldName                       = 3
	fieldPin                        = 4
	fieldWaterTankName              = 5
	fieldWaterSourceName            = 6
	fieldState                      = 7
	fieldActive                     = 8
	fieldForce                      = 9
	fieldEnabled                    = 10
	fieldMode                       = 11
	fieldVolumeFactor               = 14
	fieldPressureFactor             = 15
	fieldPressureChangingValue      = 16
	fieldMinimumVolume              = 17
	fieldMaxVolume                  = 18
	fieldZeroVolumePressure         = 19
)

// Request is the generic envelope for every entry in spec §6's request
// repertoire. Only the fields relevant to Type are populated; proto3
// semantics apply (zero values are omitted from the wire, and an
// absent field decodes to its zero value).
type Request struct {
	ID   uint32
	Type RequestType

	Name            string
	Pin             uint32
	WaterTankName   string
	WaterSourceName string
	State           bool
	Active          bool
	Force           bool
	Enabled         bool
	Mode            uint32

	VolumeFactor          float64
	PressureFactor        float64
	PressureChangingValue float64
	MinimumVolume         float64
	MaxVolume             float64
	ZeroVolumePressure    float64
}

// Marshal encodes r as a protobuf-wire-compatible byte string.
func (r *Request) Marshal() ([]byte, error) {
	var b []byte
	b = appendUint32(b, fieldID, r.ID)
	b = appendUint32(b, fieldType, uint32(r.Type))
	b = appendString(b, fieldName, r.Name)
	b = appendUint32(b, fieldPin, r.Pin)
	b = appendString(b, fieldWaterTankName, r.WaterTankName)
	b = appendString(b, fieldWaterSourceName, r.WaterSourceName)
	b = appendBool(b, fieldState, r.State)
	b = appendBool(b, fieldActive, r.Active)
	b = appendBool(b, fieldForce, r.Force)
	b = appendBool(b, fieldEnabled, r.Enabled)
	b = appendUint32(b, fieldMode, r.Mode)
	b = appendDouble(b, fieldVolumeFactor, r.VolumeFactor)
	b = appendDouble(b, fieldPressureFactor, r.PressureFactor)
	b = appendDouble(b, fieldPressureChangingValue, r.PressureChangingValue)
	b = appendDouble(b, fieldMinimumVolume, r.MinimumVolume)
	b = appendDouble(b, fieldMaxVolume, r.MaxVolume)
	b = appendDouble(b, fieldZeroVolumePressure, r.ZeroVolumePressure)
	return b, nil
}

// Unmarshal decodes b into r, which is reset first.
func (r *Request) Unmarshal(b []byte) error {
	*r = Request{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("wire: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldID:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return err
			}
			r.ID = uint32(v)
			b = b[n:]
		case fieldType:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return err
			}
			r.Type = RequestType(v)
			b = b[n:]
		case fieldName:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return err
			}
			r.Name = v
			b = b[n:]
		case fieldPin:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return err
			}
			r.Pin = uint32(v)
			b = b[n:]
		case fieldWaterTankName:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return err
			}
			r.WaterTankName = v
			b = b[n:]
		case fieldWaterSourceName:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return err
			}
			r.WaterSourceName = v
			b = b[n:]
		case fieldState:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return err
			}
			r.State = v != 0
			b = b[n:]
		case fieldActive:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return err
			}
			r.Active = v != 0
			b = b[n:]
		case fieldForce:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return err
			}
			r.Force = v != 0
			b = b[n:]
		case fieldEnabled:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return err
			}
			r.Enabled = v != 0
			b = b[n:]
		case fieldMode:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return err
			}
			r.Mode = uint32(v)
			b = b[n:]
		case fieldVolumeFactor:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return err
			}
			r.VolumeFactor = v
			b = b[n:]
		case fieldPressureFactor:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return err
			}
			r.PressureFactor = v
			b = b[n:]
		case fieldPressureChangingValue:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return err
			}
			r.PressureChangingValue = v
			b = b[n:]
		case fieldMinimumVolume:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return err
			}
			r.MinimumVolume = v
			b = b[n:]
		case fieldMaxVolume:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return err
			}
			r.MaxVolume = v
			b = b[n:]
		case fieldZeroVolumePressure:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return err
			}
			r.ZeroVolumePressure = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("wire: bad field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

// ErrorType classifies a Response's error sub-object per spec §6/§7.
type ErrorType string

const (
	ErrException      ErrorType = "EXCEPTION"
	ErrRuntimeError    ErrorType = "RUNTIME_ERROR"
	ErrInvalidRequest  ErrorType = "INVALID_REQUEST"
)

const (
	rFieldID           = 1
	rFieldErrorType    = 2
	rFieldErrorMessage = 3
	rFieldErrorArg     = 4
	rFieldName         = 5
	rFieldPin          = 6
	rFieldActive       = 7
	rFieldState        = 8
	rFieldMode         = 9
	rFieldVolumeFactor = 10
	rFieldPressureFactor        = 11
	rFieldPressureChangingValue = 12
	rFieldMinimumVolume         = 13
	rFieldMaxVolume             = 14
	rFieldZeroVolumePressure    = 15
	rFieldNames                 = 16 // repeated string, for list responses
	rFieldWaterSourceName       = 17
	rFieldWaterTankName         = 18
)

// Response mirrors a Request with a correlation ID and either populated
// state fields (ok) or a populated error sub-object. ID=0 marks an
// unsolicited error response (rotated runtime fault).
type Response struct {
	ID uint32

	ErrorType    ErrorType // empty if ok
	ErrorMessage string
	ErrorArg     string

	Name            string
	Pin             uint32
	Active          bool
	State           bool
	Mode            uint32
	WaterSourceName string
	WaterTankName   string

	VolumeFactor          float64
	PressureFactor        float64
	PressureChangingValue float64
	MinimumVolume         float64
	MaxVolume             float64
	ZeroVolumePressure    float64

	Names []string
}

// IsError reports whether this is an error response.
func (r *Response) IsError() bool { return r.ErrorType != "" }

func (r *Response) Marshal() ([]byte, error) {
	var b []byte
	b = appendUint32(b, rFieldID, r.ID)
	b = appendString(b, rFieldErrorType, string(r.ErrorType))
	b = appendString(b, rFieldErrorMessage, r.ErrorMessage)
	b = appendString(b, rFieldErrorArg, r.ErrorArg)
	b = appendString(b, rFieldName, r.Name)
	b = appendUint32(b, rFieldPin, r.Pin)
	b = appendBool(b, rFieldActive, r.Active)
	b = appendBool(b, rFieldState, r.State)
	b = appendUint32(b, rFieldMode, r.Mode)
	b = appendDouble(b, rFieldVolumeFactor, r.VolumeFactor)
	b = appendDouble(b, rFieldPressureFactor, r.PressureFactor)
	b = appendDouble(b, rFieldPressureChangingValue, r.PressureChangingValue)
	b = appendDouble(b, rFieldMinimumVolume, r.MinimumVolume)
	b = appendDouble(b, rFieldMaxVolume, r.MaxVolume)
	b = appendDouble(b, rFieldZeroVolumePressure, r.ZeroVolumePressure)
	b = appendString(b, rFieldWaterSourceName, r.WaterSourceName)
	b = appendString(b, rFieldWaterTankName, r.WaterTankName)
	for _, name := range r.Names {
		b = appendString(b, rFieldNames, name)
	}
	return b, nil
}

func (r *Response) Unmarshal(b []byte) error {
	*r = Response{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("wire: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case rFieldID:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return err
			}
			r.ID = uint32(v)
			b = b[n:]
		case rFieldErrorType:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return err
			}
			r.ErrorType = ErrorType(v)
			b = b[n:]
		case rFieldErrorMessage:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return err
			}
			r.ErrorMessage = v
			b = b[n:]
		case rFieldErrorArg:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return err
			}
			r.ErrorArg = v
			b = b[n:]
		case rFieldName:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return err
			}
			r.Name = v
			b = b[n:]
		case rFieldPin:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return err
			}
			r.Pin = uint32(v)
			b = b[n:]
		case rFieldActive:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return err
			}
			r.Active = v != 0
			b = b[n:]
		case rFieldState:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return err
			}
			r.State = v != 0
			b = b[n:]
		case rFieldMode:
			v, n, err := consumeVarint(b, typ)
			if err != nil {
				return err
			}
			r.Mode = uint32(v)
			b = b[n:]
		case rFieldVolumeFactor:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return err
			}
			r.VolumeFactor = v
			b = b[n:]
		case rFieldPressureFactor:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return err
			}
			r.PressureFactor = v
			b = b[n:]
		case rFieldPressureChangingValue:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return err
			}
			r.PressureChangingValue = v
			b = b[n:]
		case rFieldMinimumVolume:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return err
			}
			r.MinimumVolume = v
			b = b[n:]
		case rFieldMaxVolume:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return err
			}
			r.MaxVolume = v
			b = b[n:]
		case rFieldZeroVolumePressure:
			v, n, err := consumeDouble(b, typ)
			if err != nil {
				return err
			}
			r.ZeroVolumePressure = v
			b = b[n:]
		case rFieldWaterSourceName:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return err
			}
			r.WaterSourceName = v
			b = b[n:]
		case rFieldWaterTankName:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return err
			}
			r.WaterTankName = v
			b = b[n:]
		case rFieldNames:
			v, n, err := consumeString(b, typ)
			if err != nil {
				return err
			}
			r.Names = append(r.Names, v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("wire: bad field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func appendUint32(b []byte, field protowire.Number, v uint32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, field, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, field protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, field, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendString(b []byte, field protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendDouble(b []byte, field protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, field, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func consumeVarint(b []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("wire: expected varint, got wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeString(b []byte, typ protowire.Type) (string, int, error) {
	if typ != protowire.BytesType {
		return "", 0, fmt.Errorf("wire: expected bytes, got wire type %d", typ)
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeDouble(b []byte, typ protowire.Type) (float64, int, error) {
	if typ != protowire.Fixed64Type {
		return 0, 0, fmt.Errorf("wire: expected fixed64, got wire type %d", typ)
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return math.Float64frombits(v), n, nil
}
