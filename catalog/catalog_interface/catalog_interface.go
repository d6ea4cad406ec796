package catalog_interface

import (
	"github.com/ryogrid/SamehadaTxStore/storage/page"
	"github.com/ryogrid/SamehadaTxStore/storage/tuple"
	"github.com/ryogrid/SamehadaTxStore/types"
)

// PageStore is implemented by a table's storage engine.
// pages of one store share its table id.
type PageStore interface {
	GetTableId() types.TableID
	ReadPage(pid page.PageID) (*page.Page, error)
	WritePage(pg *page.Page) error
	// InsertTuple and DeleteTuple return the pages they dirtied
	InsertTuple(txn types.TxnID, tuple_ *tuple.Tuple) ([]*page.Page, error)
	DeleteTuple(txn types.TxnID, tuple_ *tuple.Tuple) ([]*page.Page, error)
	NumPages() int32
}

// PageFetcher is the locked page access a page store uses to find pages
type PageFetcher interface {
	GetPage(txn types.TxnID, pid page.PageID, perm types.Permissions) (*page.Page, error)
	HoldsLock(txn types.TxnID, pid page.PageID) bool
	UnsafeReleasePage(txn types.TxnID, pid page.PageID)
}

type CatalogInterface interface {
	GetPageStore(tableId types.TableID) (PageStore, error)
}
