package catalog

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/ryogrid/SamehadaTxStore/catalog/catalog_interface"
	samehada_errors "github.com/ryogrid/SamehadaTxStore/errors"
	"github.com/ryogrid/SamehadaTxStore/types"
	"github.com/sasha-s/go-deadlock"
)

const ErrTableNotFound = samehada_errors.Error("table not found")
const ErrTableAlreadyExists = samehada_errors.Error("table already exists")

// TableMetadata is the binding of a table to its page store and tuple size
type TableMetadata struct {
	name      string
	tableId   types.TableID
	store     catalog_interface.PageStore
	tupleSize int
}

func (tm *TableMetadata) Name() string {
	return tm.name
}

func (tm *TableMetadata) TableId() types.TableID {
	return tm.tableId
}

func (tm *TableMetadata) Store() catalog_interface.PageStore {
	return tm.store
}

func (tm *TableMetadata) TupleSize() int {
	return tm.tupleSize
}

// Catalog is a non-persistent catalog. tables are registered on every start
type Catalog struct {
	tables map[types.TableID]*TableMetadata
	names  map[string]types.TableID
	mutex  *deadlock.RWMutex
}

func NewCatalog() *Catalog {
	return &Catalog{make(map[types.TableID]*TableMetadata), make(map[string]types.TableID), new(deadlock.RWMutex)}
}

func (c *Catalog) AddTable(name string, store catalog_interface.PageStore, tupleSize int) (*TableMetadata, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, ok := c.names[name]; ok {
		return nil, errors.Wrapf(ErrTableAlreadyExists, "name: %s", name)
	}
	tableId := store.GetTableId()
	if _, ok := c.tables[tableId]; ok {
		return nil, errors.Wrapf(ErrTableAlreadyExists, "table id: %d", tableId)
	}

	tableMetadata := &TableMetadata{name, tableId, store, tupleSize}
	c.tables[tableId] = tableMetadata
	c.names[name] = tableId
	return tableMetadata, nil
}

func (c *Catalog) GetPageStore(tableId types.TableID) (catalog_interface.PageStore, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if table, ok := c.tables[tableId]; ok {
		return table.store, nil
	}
	return nil, errors.Wrapf(ErrTableNotFound, "table id: %d", tableId)
}

func (c *Catalog) GetTableByName(name string) *TableMetadata {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if tableId, ok := c.names[name]; ok {
		return c.tables[tableId]
	}
	return nil
}

func (c *Catalog) GetTableByTableId(tableId types.TableID) *TableMetadata {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.tables[tableId]
}

// TableIds returns ids of registered tables in ascending order
func (c *Catalog) TableIds() []types.TableID {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	ret := make([]types.TableID, 0, len(c.tables))
	for tableId := range c.tables {
		ret = append(ret, tableId)
	}
	slices.Sort(ret)
	return ret
}
