package page

import (
	"fmt"

	"github.com/ryogrid/SamehadaTxStore/types"
)

// PageID is the identifier of a page: table and page number in the table's file.
// comparable, so it is used as map key for cache, lock table and log bookkeeping
type PageID struct {
	TableId types.TableID
	PageNo  int32
}

func NewPageID(tableId types.TableID, pageNo int32) PageID {
	return PageID{tableId, pageNo}
}

func (pid PageID) IsValid() bool {
	return pid.PageNo >= 0
}

// Serialize returns ints which are written as page id part of page image in log
func (pid PageID) Serialize() []int32 {
	return []int32{int32(pid.TableId), pid.PageNo}
}

func (pid PageID) String() string {
	return fmt.Sprintf("(%d, %d)", pid.TableId, pid.PageNo)
}
