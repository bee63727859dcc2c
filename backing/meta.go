package backing

import (
	"maps"

	"github.com/hupe1980/spill"
)

// MetaSuffix is appended to a data path to name its metadata sidecar.
const MetaSuffix = ".mtd"

// Metadata is the content of a sidecar.
type Metadata struct {
	spill.Meta
	Replication int               `json:"replication,omitempty"`
	Props       map[string]string `json:"props,omitempty"`
}

func newMetadata(format string, opts spill.WriteOptions) Metadata {
	m := Metadata{
		Meta:        opts.Meta,
		Replication: opts.Replication,
		Props:       maps.Clone(opts.Props),
	}
	m.Format = format
	return m
}
