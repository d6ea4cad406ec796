package page

import (
	"fmt"

	"github.com/pkg/errors"
	samehada_errors "github.com/ryogrid/SamehadaTxStore/errors"
	"github.com/ryogrid/SamehadaTxStore/types"
)

// PageKind is the tag written before a page image in the log.
// it tells the decoder which page implementation the bytes belong to
type PageKind int32

const (
	PageKindHeap PageKind = 1
	// opaque bytes with no store specific layout
	PageKindRaw PageKind = 2
)

// PageIdKind is the tag of page id encoding in a page image
type PageIdKind int32

const (
	// ints: table id, page number
	PageIdKindHeap PageIdKind = 1
)

const ErrUnknownPageKind = samehada_errors.Error("unknown page kind tag")

func (kind PageKind) IsValid() bool {
	switch kind {
	case PageKindHeap, PageKindRaw:
		return true
	}
	return false
}

func (kind PageKind) String() string {
	switch kind {
	case PageKindHeap:
		return "HeapPage"
	case PageKindRaw:
		return "RawPage"
	}
	return fmt.Sprintf("UnknownPage(%d)", int32(kind))
}

func (pid PageID) GetIdKind() PageIdKind {
	return PageIdKindHeap
}

// NewPageIdFromInts reconstructs a page id from its serialized ints
func NewPageIdFromInts(idKind PageIdKind, ints []int32) (PageID, error) {
	switch idKind {
	case PageIdKindHeap:
		if len(ints) != 2 {
			return PageID{}, errors.Wrapf(ErrUnknownPageKind, "heap page id needs 2 ints but got %d", len(ints))
		}
		return NewPageID(types.TableID(ints[0]), ints[1]), nil
	}
	return PageID{}, errors.Wrapf(ErrUnknownPageKind, "page id kind %d", idKind)
}

// NewPageFromImage is the factory used on log replay
func NewPageFromImage(kind PageKind, idKind PageIdKind, idInts []int32, data []byte) (*Page, error) {
	if !kind.IsValid() {
		return nil, errors.Wrapf(ErrUnknownPageKind, "page kind %d", kind)
	}
	pid, err := NewPageIdFromInts(idKind, idInts)
	if err != nil {
		return nil, err
	}
	return NewPage(pid, kind, data), nil
}
