package artifacts

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tsawler/go-latent/latent"
)

// ErrMalformedLatents is returned when a latent export cannot be decoded
var ErrMalformedLatents = errors.New("malformed latent export")

// Wire layout, field numbers in parentheses:
//
//	Export: dim(1) rows(2, repeated)
//	Row:    label(1, zigzag varint) values(2, packed fixed64)

// MarshalLatents encodes a latent dataset in protobuf wire format
func MarshalLatents(ds *latent.Dataset) []byte {
	dim := ds.Dim()
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(dim))

	values := make([]byte, 0, 8*dim)
	for i, label := range ds.Labels {
		values = values[:0]
		for j := 0; j < dim; j++ {
			values = protowire.AppendFixed64(values, math.Float64bits(ds.Latents.At(i, j)))
		}

		var row []byte
		row = protowire.AppendTag(row, 1, protowire.VarintType)
		row = protowire.AppendVarint(row, protowire.EncodeZigZag(int64(label)))
		row = protowire.AppendTag(row, 2, protowire.BytesType)
		row = protowire.AppendBytes(row, values)

		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, row)
	}
	return b
}

// UnmarshalLatents decodes the output of MarshalLatents
func UnmarshalLatents(data []byte) (*latent.Dataset, error) {
	dim := -1
	var labels []int
	var values []float64

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedLatents, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: dim: %v", ErrMalformedLatents, protowire.ParseError(m))
			}
			dim = int(v)
			n = m
		case num == 2 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedLatents, len(labels), protowire.ParseError(m))
			}
			label, row, err := unmarshalRow(v)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedLatents, len(labels), err)
			}
			if dim < 0 {
				return nil, fmt.Errorf("%w: row before dimension", ErrMalformedLatents)
			}
			if len(row) != dim {
				return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrMalformedLatents, len(labels), len(row), dim)
			}
			labels = append(labels, label)
			values = append(values, row...)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedLatents, num, protowire.ParseError(n))
			}
		}
		data = data[n:]
	}

	if dim <= 0 {
		return nil, fmt.Errorf("%w: missing dimension", ErrMalformedLatents)
	}
	ds := &latent.Dataset{Labels: labels}
	if len(labels) > 0 {
		ds.Latents = mat.NewDense(len(labels), dim, values)
	}
	return ds, nil
}

func unmarshalRow(data []byte) (int, []float64, error) {
	var label int
	var row []float64
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return 0, nil, protowire.ParseError(m)
			}
			label = int(protowire.DecodeZigZag(v))
			n = m
		case num == 2 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return 0, nil, protowire.ParseError(m)
			}
			if len(v)%8 != 0 {
				return 0, nil, fmt.Errorf("packed values length %d not a multiple of 8", len(v))
			}
			for len(v) > 0 {
				bits, k := protowire.ConsumeFixed64(v)
				row = append(row, math.Float64frombits(bits))
				v = v[k:]
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return 0, nil, protowire.ParseError(n)
			}
		}
		data = data[n:]
	}
	return label, row, nil
}

// WriteLatents writes a latent dataset to path
func WriteLatents(path string, ds *latent.Dataset) error {
	if err := os.WriteFile(path, MarshalLatents(ds), 0o644); err != nil {
		return fmt.Errorf("write latents: %w", err)
	}
	return nil
}

// ReadLatents reads a latent dataset written by WriteLatents
func ReadLatents(path string) (*latent.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read latents: %w", err)
	}
	return UnmarshalLatents(data)
}
