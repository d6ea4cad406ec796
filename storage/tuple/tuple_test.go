package tuple

import (
	"testing"

	"github.com/ryogrid/SamehadaTxStore/storage/page"
	testingpkg "github.com/ryogrid/SamehadaTxStore/testing/testing_assert"
)

func TestTupleInt32s(t *testing.T) {
	tuple_ := NewTupleFromInt32s(1, -20, 300)
	testingpkg.Equals(t, uint32(12), tuple_.Size())
	testingpkg.Equals(t, int32(1), tuple_.GetInt32(0))
	testingpkg.Equals(t, int32(-20), tuple_.GetInt32(1))
	testingpkg.Equals(t, int32(300), tuple_.GetInt32(2))
	testingpkg.Assert(t, tuple_.GetRID() == nil, "")

	rid := page.NewRID(page.NewPageID(1, 2), 3)
	tuple_.SetRID(rid)
	testingpkg.Equals(t, uint32(3), tuple_.GetRID().GetSlot())
}
