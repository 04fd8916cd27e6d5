package ledger

import "github.com/lasagna-chain/lasagna/internal/keys"

// snapshot captures, for a set of accounts touched by a transaction, the
// balance each one held immediately before processing began: Some(bal) if
// the account already existed, None if it did not. Rolling back to a
// snapshot restores exactly that — including deleting accounts the
// transaction caused to spring into existence.
type snapshot struct {
	balances map[keys.PublicKey]*uint64
}

func newSnapshot() *snapshot {
	return &snapshot{balances: make(map[keys.PublicKey]*uint64)}
}

// record stores pk's balance the first time it is seen; later calls for the
// same key are no-ops, since the snapshot must reflect state as of the start
// of the transaction, not as of some later instruction.
func (s *snapshot) record(pk keys.PublicKey, balances map[keys.PublicKey]uint64) {
	if _, ok := s.balances[pk]; ok {
		return
	}
	if bal, ok := balances[pk]; ok {
		v := bal
		s.balances[pk] = &v
	} else {
		s.balances[pk] = nil
	}
}
