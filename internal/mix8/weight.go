package mix8

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nguyencongminh090/Rapfi-engine/internal/simdops"
)

// HeadBucket holds one selectable output head's float32 layers. A weight
// file carries NumHeadBuckets of these; which one an accumulator reads
// from is chosen by Accumulator.BucketIndex (accumulator.go), keyed off game ply so a
// single network can specialize its late layers by game phase.
type HeadBucket struct {
	ValueCornerWeight [ValueGroupDim][FeatureDim]float32
	ValueCornerBias   [ValueGroupDim]float32
	ValueCornerPRelu  [ValueGroupDim]float32

	ValueEdgeWeight [ValueGroupDim][FeatureDim]float32
	ValueEdgeBias   [ValueGroupDim]float32
	ValueEdgePRelu  [ValueGroupDim]float32

	ValueCenterWeight [ValueGroupDim][FeatureDim]float32
	ValueCenterBias   [ValueGroupDim]float32
	ValueCenterPRelu  [ValueGroupDim]float32

	ValueQuadWeight [ValueGroupDim][ValueGroupDim]float32
	ValueQuadBias   [ValueGroupDim]float32
	ValueQuadPRelu  [ValueGroupDim]float32

	ValueL1Weight [ValueDim][FeatureDim + 4*ValueGroupDim]float32
	ValueL1Bias   [ValueDim]float32

	ValueL2Weight [ValueDim][ValueDim]float32
	ValueL2Bias   [ValueDim]float32

	ValueL3Weight [valueL3OutputDim][ValueDim]float32
	ValueL3Bias   [valueL3OutputDim]float32

	PolicyPWConvL1Weight [PolicyDim][FeatureDim]float32
	PolicyPWConvL1Bias   [PolicyDim]float32
	PolicyPWConvL1PRelu  [PolicyDim]float32

	PolicyPWConvL2Weight [4 * PolicyDim][PolicyDim]float32
	PolicyPWConvL2Bias   [4 * PolicyDim]float32

	PolicyOutputPosWeight [4]float32
	PolicyOutputNegWeight [4]float32
	PolicyOutputBias      float32
}

// Weight is the full Mix8 network as read from a weight file: a per-shape
// feature mapping table, a shared PReLU slope, the 3x3 depthwise
// convolution kernel, and a set of head buckets. Field order and shapes
// are ported directly from Mix8Weight/Mix8BinaryWeightLoader.
type Weight struct {
	// Mapping is row-major by shape index: row s occupies
	// Mapping[s*FeatureDim : s*FeatureDim+FeatureDim]. Kept as a flat
	// slice rather than [ShapeNum][FeatureDim]int16 so a single
	// io.ReadFull-backed decode doesn't need reflection over 500k rows.
	Mapping []int16

	MapPReluWeight [FeatureDim]int16

	// FeatureDWConvWeight[8-dy*3-dx] holds the depthwise kernel tap for
	// offset (dx,dy) in [0,2]x[0,2], matching the reference's inverted
	// indexing (kernel taps are stored flipped relative to the offsets
	// they're applied at).
	FeatureDWConvWeight [9][FeatureDWConvDim]int16
	FeatureDWConvBias   [FeatureDWConvDim]int16

	ValueSumScaleAfterConv float32
	ValueSumScaleDirect    float32

	NumHeadBuckets int32
	Buckets        [MaxNumBuckets]HeadBucket
}

// MappingRow returns the FeatureDim-wide feature row for shape.
func (w *Weight) MappingRow(shape uint32) []int16 {
	off := int(shape) * FeatureDim
	return w.Mapping[off : off+FeatureDim]
}

// mix8BinaryLoader decodes a Weight from a raw (post-header,
// post-decompression) byte stream, mirroring Mix8BinaryWeightLoader::load
// field-for-field: mapping, map_prelu_weight, feature_dwconv_weight,
// feature_dwconv_bias, the two scale floats, num_head_buckets, a padding
// skip, then up to MaxNumBuckets head buckets (zero-filled beyond
// num_head_buckets), followed by an EOF assertion.
type mix8BinaryLoader struct{}

func (mix8BinaryLoader) NeedsBinaryStream() bool { return true }

func (mix8BinaryLoader) Load(r io.Reader) (*Weight, error) {
	w := &Weight{Mapping: simdops.AlignedInt16(ShapeNum * FeatureDim)}

	if err := binary.Read(r, binary.LittleEndian, w.Mapping); err != nil {
		return nil, fmt.Errorf("mix8 weight: mapping: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &w.MapPReluWeight); err != nil {
		return nil, fmt.Errorf("mix8 weight: map prelu: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &w.FeatureDWConvWeight); err != nil {
		return nil, fmt.Errorf("mix8 weight: dwconv weight: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &w.FeatureDWConvBias); err != nil {
		return nil, fmt.Errorf("mix8 weight: dwconv bias: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &w.ValueSumScaleAfterConv); err != nil {
		return nil, fmt.Errorf("mix8 weight: value sum scale after conv: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &w.ValueSumScaleDirect); err != nil {
		return nil, fmt.Errorf("mix8 weight: value sum scale direct: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &w.NumHeadBuckets); err != nil {
		return nil, fmt.Errorf("mix8 weight: num head buckets: %w", err)
	}
	if w.NumHeadBuckets < 1 || w.NumHeadBuckets > MaxNumBuckets {
		return nil, fmt.Errorf("mix8 weight: num head buckets %d out of range [1,%d]", w.NumHeadBuckets, MaxNumBuckets)
	}

	// value_sum_scale_after_conv + value_sum_scale_direct + num_head_buckets
	// is 4+4+4 = 12 bytes; pad that out to a 64-byte boundary before the
	// head bucket array begins.
	const paddingTo64Bytes = 64 - 4 - 4 - 4
	if _, err := io.CopyN(io.Discard, r, paddingTo64Bytes); err != nil {
		return nil, fmt.Errorf("mix8 weight: header padding: %w", err)
	}

	for i := 0; i < MaxNumBuckets; i++ {
		if int32(i) < w.NumHeadBuckets {
			if err := binary.Read(r, binary.LittleEndian, &w.Buckets[i]); err != nil {
				return nil, fmt.Errorf("mix8 weight: head bucket %d: %w", i, err)
			}
		}
		// buckets beyond NumHeadBuckets stay zero-valued, matching the
		// reference's memset of unused tail buckets.
	}

	var probe [1]byte
	if _, err := r.Read(probe[:]); err != io.EOF {
		return nil, fmt.Errorf("mix8 weight: trailing data after last head bucket")
	}

	return w, nil
}
