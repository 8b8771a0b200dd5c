package checkpoints

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire layout, field numbers in parentheses:
//
//	Checkpoint: latent_dim(1) image_size(2) weights(3, repeated) state(4) metadata(5)
//	Weight:     name(1) shape(2, packed varint) data(3, packed fixed32)
//	State:      epoch(1) train_loss(2) val_loss(3) learning_rate(4) optimizer(5)
//	Metadata:   version(1) framework(2) created_at_unix_nano(3) run_id(4) description(5)

func marshalProto(c *Checkpoint) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Model.LatentDim))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Model.ImageSize))
	for _, w := range c.Weights {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalWeight(w))
	}
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, marshalState(c.TrainingState))
	b = protowire.AppendTag(b, 5, protowire.BytesType)
	b = protowire.AppendBytes(b, marshalMetadata(c.Metadata))
	return b
}

func marshalWeight(w WeightTensor) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, w.Name)

	var shape []byte
	for _, d := range w.Shape {
		shape = protowire.AppendVarint(shape, uint64(d))
	}
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, shape)

	data := make([]byte, 0, 4*len(w.Data))
	for _, v := range w.Data {
		data = protowire.AppendFixed32(data, math.Float32bits(v))
	}
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	return protowire.AppendBytes(b, data)
}

func marshalState(s TrainingState) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Epoch))
	for i, v := range []float64{s.TrainLoss, s.ValLoss, s.LearningRate} {
		b = protowire.AppendTag(b, protowire.Number(i+2), protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, 5, protowire.BytesType)
	return protowire.AppendString(b, s.Optimizer)
}

func marshalMetadata(m CheckpointMetadata) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.Version)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, m.Framework)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(m.CreatedAt.UnixNano()))
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendString(b, m.RunID)
	b = protowire.AppendTag(b, 5, protowire.BytesType)
	return protowire.AppendString(b, m.Description)
}

// walkFields calls fn for each field in b. fn returns the number of value
// bytes it consumed, or a negative protowire error code.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := fn(num, typ, b)
		if m < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func unmarshalProto(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	var nested error
	keep := func(err error) {
		if err != nil && nested == nil {
			nested = err
		}
	}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			c.Model.LatentDim = int(v)
			return n
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			c.Model.ImageSize = int(v)
			return n
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				w, err := unmarshalWeight(v)
				keep(err)
				c.Weights = append(c.Weights, w)
			}
			return n
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				state, err := unmarshalState(v)
				keep(err)
				c.TrainingState = state
			}
			return n
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				meta, err := unmarshalMetadata(v)
				keep(err)
				c.Metadata = meta
			}
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	if err == nil {
		err = nested
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &c, nil
}

func unmarshalWeight(data []byte) (WeightTensor, error) {
	var w WeightTensor
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		switch num {
		case 1:
			w.Name = string(v)
		case 2:
			for len(v) > 0 {
				d, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return m
				}
				w.Shape = append(w.Shape, int(d))
				v = v[m:]
			}
		case 3:
			w.Data = make([]float32, 0, len(v)/4)
			for len(v) > 0 {
				bits, m := protowire.ConsumeFixed32(v)
				if m < 0 {
					return m
				}
				w.Data = append(w.Data, math.Float32frombits(bits))
				v = v[m:]
			}
		}
		return n
	})
	return w, err
}

func unmarshalState(data []byte) (TrainingState, error) {
	var s TrainingState
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s.Epoch = int(v)
			return n
		case num >= 2 && num <= 4 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			f := math.Float64frombits(v)
			switch num {
			case 2:
				s.TrainLoss = f
			case 3:
				s.ValLoss = f
			case 4:
				s.LearningRate = f
			}
			return n
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			s.Optimizer = v
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return s, err
}

func unmarshalMetadata(data []byte) (CheckpointMetadata, error) {
	var m CheckpointMetadata
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 3 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			m.CreatedAt = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
			return n
		}
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		v, n := protowire.ConsumeString(b)
		switch num {
		case 1:
			m.Version = v
		case 2:
			m.Framework = v
		case 4:
			m.RunID = v
		case 5:
			m.Description = v
		}
		return n
	})
	return m, err
}
