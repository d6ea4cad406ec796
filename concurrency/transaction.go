package concurrency

import (
	"github.com/ryogrid/SamehadaTxStore/types"
)

/**
 * Transaction states:
 *
 * GROWING -> COMMITTED
 *    |
 *    +----> ABORTED
 *
 * locks are only acquired while GROWING and all of them are released
 * at once on completion, so there is no shrinking phase.
 **/
type TransactionState int32

const (
	GROWING TransactionState = iota
	COMMITTED
	ABORTED
)

func (state TransactionState) String() string {
	switch state {
	case GROWING:
		return "GROWING"
	case COMMITTED:
		return "COMMITTED"
	case ABORTED:
		return "ABORTED"
	}
	return "UNKNOWN"
}

type Transaction struct {
	txn_id types.TxnID
	state  TransactionState
}

func NewTransaction(txn_id types.TxnID) *Transaction {
	return &Transaction{txn_id, GROWING}
}

/** @return the id of this transaction */
func (txn *Transaction) GetTransactionId() types.TxnID { return txn.txn_id }

func (txn *Transaction) GetState() TransactionState { return txn.state }

func (txn *Transaction) SetState(state TransactionState) { txn.state = state }

func (txn *Transaction) IsCompleted() bool { return txn.state != GROWING }
