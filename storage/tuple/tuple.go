// this code is from https://github.com/brunocalza/go-bustub
// there is license and copyright notice in licenses/go-bustub dir

package tuple

import (
	"bytes"
	"encoding/binary"

	"github.com/ryogrid/SamehadaTxStore/storage/page"
)

// Tuple is a fixed-size opaque record. its layout belongs to upper layer.
// rid is nil until the tuple is stored in a page
type Tuple struct {
	rid  *page.RID
	size uint32
	data []byte
}

func NewTuple(rid *page.RID, size uint32, data []byte) *Tuple {
	return &Tuple{rid, size, data}
}

// NewTupleFromBytes makes a tuple which is not stored yet
func NewTupleFromBytes(data []byte) *Tuple {
	return &Tuple{nil, uint32(len(data)), data}
}

// NewTupleFromInt32s packs ints in little endian. handy for tests and tools
func NewTupleFromInt32s(vals ...int32) *Tuple {
	buf := new(bytes.Buffer)
	for _, v := range vals {
		binary.Write(buf, binary.LittleEndian, v)
	}
	return NewTupleFromBytes(buf.Bytes())
}

// GetInt32 reads idx-th int32 field of tuple packed by NewTupleFromInt32s
func (t *Tuple) GetInt32(idx int) (ret int32) {
	binary.Read(bytes.NewReader(t.data[idx*4:idx*4+4]), binary.LittleEndian, &ret)
	return ret
}

func (t *Tuple) Data() []byte {
	return t.data
}

func (t *Tuple) Size() uint32 {
	return t.size
}

func (t *Tuple) GetRID() *page.RID {
	return t.rid
}

func (t *Tuple) SetRID(rid *page.RID) {
	t.rid = rid
}
