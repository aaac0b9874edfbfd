package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Len(t *testing.T) {
	w := NewWriter(4)
	w.WriteByte(1)
	w.WriteShort(2)
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, w.Len(), len(w.Bytes()))
}

func TestWriter_WriteBytes(t *testing.T) {
	w := NewWriter(4)
	w.WriteBytes([]byte{0xDE, 0xAD})
	w.WriteBytes([]byte{0xBE, 0xEF})
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, w.Bytes())
}

func TestWriter_NegativeValues(t *testing.T) {
	w := NewWriter(8)
	w.WriteLong(-1)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, w.Bytes())
}
