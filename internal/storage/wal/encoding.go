package wal

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xtxerr/satmon/internal/storage/types"
)

// Record payload encoding (protobuf wire format, no generated code):
//
//	record  = repeated point (field 1, bytes)
//	point   = parameter_id (field 1, bytes)
//	          timestamp_ms (field 2, varint, two's complement)
//	          value        (field 3, fixed64, IEEE 754 bits)
//
// Unknown fields are skipped so newer writers stay readable.
const (
	fieldRecordPoint = 1

	fieldPointParameterID = 1
	fieldPointTimestampMs = 2
	fieldPointValue       = 3
)

// encodePoints encodes a batch of points into one record payload.
func encodePoints(points []types.DataPoint) ([]byte, error) {
	if len(points) == 0 {
		return nil, nil
	}

	buf := make([]byte, 0, len(points)*64)
	var msg []byte

	for _, p := range points {
		if p.ParameterID == "" {
			return nil, fmt.Errorf("point without parameter id")
		}

		msg = msg[:0]
		msg = protowire.AppendTag(msg, fieldPointParameterID, protowire.BytesType)
		msg = protowire.AppendString(msg, p.ParameterID)
		msg = protowire.AppendTag(msg, fieldPointTimestampMs, protowire.VarintType)
		msg = protowire.AppendVarint(msg, uint64(p.TimestampMs))
		msg = protowire.AppendTag(msg, fieldPointValue, protowire.Fixed64Type)
		msg = protowire.AppendFixed64(msg, math.Float64bits(p.Value))

		buf = protowire.AppendTag(buf, fieldRecordPoint, protowire.BytesType)
		buf = protowire.AppendBytes(buf, msg)
	}

	return buf, nil
}

// decodePoints decodes a record payload into points.
func decodePoints(data []byte) ([]types.DataPoint, error) {
	var points []types.DataPoint

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("record tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		if num != fieldRecordPoint || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		msg, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, fmt.Errorf("point %d: %w", len(points), protowire.ParseError(n))
		}
		data = data[n:]

		p, err := decodePoint(msg)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", len(points), err)
		}
		points = append(points, p)
	}

	return points, nil
}

func decodePoint(msg []byte) (types.DataPoint, error) {
	var p types.DataPoint

	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return p, protowire.ParseError(n)
		}
		msg = msg[n:]

		switch {
		case num == fieldPointParameterID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(msg)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.ParameterID = v
			msg = msg[n:]
		case num == fieldPointTimestampMs && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.TimestampMs = int64(v)
			msg = msg[n:]
		case num == fieldPointValue && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(msg)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.Value = math.Float64frombits(v)
			msg = msg[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			msg = msg[n:]
		}
	}

	if p.ParameterID == "" {
		return p, fmt.Errorf("missing parameter id")
	}
	return p, nil
}
