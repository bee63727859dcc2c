// Package block provides the data blocks managed by spill envelopes and
// the formats they are persisted in.
//
// [Matrix] is a float64 matrix held dense or in compressed sparse row
// form. [Frame] is a table of string cells with named columns. Both
// implement spill.Block.
//
// [MatrixCodec] and [FrameCodec] produce the compact binary payloads
// written to eviction files. Backing stores use a [Format] selected by
// name:
//
//	matrix: binary, csv
//	frame:  binary, csv, jsonl
//
// The jsonl frame format writes one JSON object per row. A column named
// "a/b" becomes the nested field {"a": {"b": ...}}.
package block
