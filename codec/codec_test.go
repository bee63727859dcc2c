package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sidecar struct {
	Rows  int64             `json:"rows"`
	Props map[string]string `json:"props,omitempty"`
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "json-indent"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())

		in := sidecar{Rows: 3, Props: map[string]string{"owner": "etl"}}
		data, err := c.Marshal(in)
		require.NoError(t, err)

		var out sidecar
		require.NoError(t, c.Unmarshal(data, &out))
		assert.Equal(t, in, out)
	}

	_, ok := ByName("go-json")
	assert.False(t, ok)
}

func TestIndentedJSON(t *testing.T) {
	data := MustMarshal(IndentedJSON{}, sidecar{Rows: 1})
	assert.Equal(t, "{\n  \"rows\": 1\n}", string(data))
}

func TestMustMarshal(t *testing.T) {
	assert.Equal(t, `{"rows":2}`, string(MustMarshal(nil, sidecar{Rows: 2})))
	assert.Panics(t, func() { MustMarshal(JSON{}, make(chan int)) })
}
