package block_test

import (
	"github.com/hupe1980/spill"
	"github.com/hupe1980/spill/block"
)

var (
	_ spill.Block                = (*block.Matrix)(nil)
	_ spill.Block                = (*block.Frame)(nil)
	_ spill.Codec[*block.Matrix] = block.MatrixCodec{}
	_ spill.Codec[*block.Frame]  = block.FrameCodec{}
)
