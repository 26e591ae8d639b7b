// Package escrow implements the vote-escrow checkpoint engine.
//
// Accounts lock a deposit for a whole number of periods and receive voting
// power that decays linearly to zero at the lock's end. Every account keeps a
// chain of Points (decay-function snapshots) and the distinguished Global
// entity keeps the aggregate chain. The aggregate is only touched lazily: when
// it is next used, every scheduled slope change between the catch-up cursor
// and the current period is folded in, in increasing period order.
//
// Arithmetic is exact. Slopes and decayed power are big.Rat values and the
// only rounding step is flooring newly added power (amount * coefficient) to
// an integer. Query results are floored at the edge. As a consequence the
// global value always equals the sum of the account values exactly.
//
// The Ledger type carries parameters only. All state lives in a Store that the
// caller passes to every operation, so independent ledgers can coexist and the
// caller decides the commit boundary.
package escrow
