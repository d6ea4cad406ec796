package page

import (
	"github.com/ryogrid/SamehadaTxStore/common"
	"github.com/ryogrid/SamehadaTxStore/types"
)

// Page is a fixed size unit which is cached by the buffer pool.
// bytes layout of data is owned by the page store which kind tells.
type Page struct {
	id   PageID
	kind PageKind
	data []byte
	// transaction which made this page dirty. InvalidTxnID means clean
	dirtier types.TxnID
	// committed image at last flush (or at load)
	beforeImage []byte
	// uncommitted writer whose image was written to disk by a checkpoint
	flushedWriter types.TxnID
	rwlatch       common.ReaderWriterLatch
}

// NewPage takes ownership of data. before-image is set to a copy of it.
func NewPage(id PageID, kind PageKind, data []byte) *Page {
	before := make([]byte, len(data))
	copy(before, data)
	return &Page{
		id:            id,
		kind:          kind,
		data:          data,
		dirtier:       types.InvalidTxnID,
		beforeImage:   before,
		flushedWriter: types.InvalidTxnID,
		rwlatch:       common.NewRWLatch(),
	}
}

func NewEmptyPage(id PageID, kind PageKind, pageSize int) *Page {
	return NewPage(id, kind, make([]byte, pageSize))
}

func (p *Page) GetPageId() PageID {
	return p.id
}

func (p *Page) GetKind() PageKind {
	return p.kind
}

// Data returns the page bytes. callers which mutate it must hold WLatch
func (p *Page) Data() []byte {
	return p.data
}

func (p *Page) Size() int {
	return len(p.data)
}

// GetPageData returns a copy of the current bytes
func (p *Page) GetPageData() []byte {
	p.rwlatch.RLock()
	defer p.rwlatch.RUnlock()
	ret := make([]byte, len(p.data))
	copy(ret, p.data)
	return ret
}

// IsDirty returns the dirtier transaction and whether page is dirty
func (p *Page) IsDirty() (types.TxnID, bool) {
	return p.dirtier, p.dirtier != types.InvalidTxnID
}

func (p *Page) MarkDirty(dirty bool, txn types.TxnID) {
	if dirty {
		p.dirtier = txn
	} else {
		p.dirtier = types.InvalidTxnID
	}
}

// GetBeforeImage returns a clean page made from retained before-image
func (p *Page) GetBeforeImage() *Page {
	data := make([]byte, len(p.beforeImage))
	copy(data, p.beforeImage)
	return NewPage(p.id, p.kind, data)
}

// SetBeforeImage makes current bytes the image later transactions roll back to
func (p *Page) SetBeforeImage() {
	p.rwlatch.RLock()
	defer p.rwlatch.RUnlock()
	p.beforeImage = make([]byte, len(p.data))
	copy(p.beforeImage, p.data)
}

func (p *Page) GetFlushedWriter() types.TxnID {
	return p.flushedWriter
}

func (p *Page) SetFlushedWriter(txn types.TxnID) {
	p.flushedWriter = txn
}

func (p *Page) WLatch() {
	p.rwlatch.WLock()
}

func (p *Page) WUnlatch() {
	p.rwlatch.WUnlock()
}

func (p *Page) RLatch() {
	p.rwlatch.RLock()
}

func (p *Page) RUnlatch() {
	p.rwlatch.RUnlock()
}
