package protocol

import (
	"errors"
	"fmt"
)

// Value tags for prop and payload values. Props cross the wire as a small
// dynamic type system: scalars, byte slices, lists, string-keyed maps, and
// a handler marker standing in for server-side func props.
const (
	valNil     byte = 0x00
	valFalse   byte = 0x01
	valTrue    byte = 0x02
	valInt     byte = 0x03 // svarint
	valFloat   byte = 0x04 // float64
	valString  byte = 0x05
	valBytes   byte = 0x06
	valList    byte = 0x07
	valMap     byte = 0x08
	valHandler byte = 0x09
)

// maxValueDepth bounds nesting of lists and maps within a value.
const maxValueDepth = 32

var (
	ErrValueTooDeep     = errors.New("protocol: value nesting too deep")
	ErrUnknownValueTag  = errors.New("protocol: unknown value tag")
	ErrUnsupportedValue = errors.New("protocol: unsupported value type")
)

// Handler is the wire stand-in for a func-valued prop. The server keeps the
// actual handler; the client only needs to know the prop is invokable.
type Handler struct{}

// WriteValue appends v in tagged form. Integers normalize to int64 and all
// floats to float64, so a round trip does not preserve the exact Go type.
func WriteValue(e *Encoder, v any) error {
	return writeValue(e, v, 0)
}

func writeValue(e *Encoder, v any, depth int) error {
	if depth > maxValueDepth {
		return ErrValueTooDeep
	}
	switch x := v.(type) {
	case nil:
		e.WriteByte(valNil)
	case bool:
		if x {
			e.WriteByte(valTrue)
		} else {
			e.WriteByte(valFalse)
		}
	case int:
		e.WriteByte(valInt)
		e.WriteSvarint(int64(x))
	case int32:
		e.WriteByte(valInt)
		e.WriteSvarint(int64(x))
	case int64:
		e.WriteByte(valInt)
		e.WriteSvarint(x)
	case uint64:
		e.WriteByte(valInt)
		e.WriteSvarint(int64(x))
	case float32:
		e.WriteByte(valFloat)
		e.WriteFloat64(float64(x))
	case float64:
		e.WriteByte(valFloat)
		e.WriteFloat64(x)
	case string:
		e.WriteByte(valString)
		e.WriteString(x)
	case []byte:
		e.WriteByte(valBytes)
		e.WriteLenBytes(x)
	case []any:
		e.WriteByte(valList)
		e.WriteUvarint(uint64(len(x)))
		for _, item := range x {
			if err := writeValue(e, item, depth+1); err != nil {
				return err
			}
		}
	case map[string]any:
		e.WriteByte(valMap)
		e.WriteUvarint(uint64(len(x)))
		for k, item := range x {
			e.WriteString(k)
			if err := writeValue(e, item, depth+1); err != nil {
				return err
			}
		}
	case Handler:
		e.WriteByte(valHandler)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	return nil
}

// ReadValue decodes one tagged value. Lists come back as []any, maps as
// map[string]any, handler markers as Handler{}.
func ReadValue(d *Decoder) (any, error) {
	return readValue(d, 0)
}

func readValue(d *Decoder, depth int) (any, error) {
	if depth > maxValueDepth {
		return nil, ErrValueTooDeep
	}
	tag, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case valNil:
		return nil, nil
	case valFalse:
		return false, nil
	case valTrue:
		return true, nil
	case valInt:
		return d.ReadSvarint()
	case valFloat:
		return d.ReadFloat64()
	case valString:
		return d.ReadString()
	case valBytes:
		return d.ReadLenBytes()
	case valList:
		n, err := d.ReadCount()
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, n)
		for i := 0; i < n; i++ {
			item, err := readValue(d, depth+1)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case valMap:
		n, err := d.ReadCount()
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, n)
		for i := 0; i < n; i++ {
			k, err := d.ReadString()
			if err != nil {
				return nil, err
			}
			item, err := readValue(d, depth+1)
			if err != nil {
				return nil, err
			}
			m[k] = item
		}
		return m, nil
	case valHandler:
		return Handler{}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownValueTag, tag)
	}
}
