package kvstore

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"voting-escrow/internal/escrow"
)

// Persisted records. RLP has no signed or rational types, so rationals are
// stored as numerator/denominator pairs and all values are non-negative.
type (
	ratRecord struct {
		Num *big.Int
		Den *big.Int
	}
	pointRecord struct {
		Power ratRecord
		Slope ratRecord
		Start uint64
		End   uint64
	}
	lockRecord struct {
		Amount *big.Int
		Start  uint64
		End    uint64
	}
	proposalRecord struct {
		Owner   common.Address
		Expires uint64
	}
	configRecord struct {
		Owner    common.Address
		Guardian common.Address
		Proposal *proposalRecord `rlp:"nil"`
	}
)

func encodeRat(r *big.Rat) ratRecord {
	if r == nil {
		return ratRecord{Num: new(big.Int), Den: big.NewInt(1)}
	}
	return ratRecord{Num: new(big.Int).Set(r.Num()), Den: new(big.Int).Set(r.Denom())}
}

func (r ratRecord) rat() (*big.Rat, error) {
	if r.Den == nil || r.Den.Sign() == 0 {
		return nil, fmt.Errorf("zero denominator")
	}
	num := r.Num
	if num == nil {
		num = new(big.Int)
	}
	return new(big.Rat).SetFrac(num, r.Den), nil
}

// LedgerReader adapts a Reader to escrow.Reader.
type LedgerReader struct {
	r Reader
}

// NewLedgerReader wraps r.
func NewLedgerReader(r Reader) *LedgerReader {
	return &LedgerReader{r: r}
}

// LedgerStore adapts a Txn to escrow.Store.
type LedgerStore struct {
	*LedgerReader
	txn Txn
}

var (
	_ escrow.Reader = (*LedgerReader)(nil)
	_ escrow.Store  = (*LedgerStore)(nil)
)

// NewLedgerStore wraps txn.
func NewLedgerStore(txn Txn) *LedgerStore {
	return &LedgerStore{LedgerReader: NewLedgerReader(txn), txn: txn}
}

func (s *LedgerReader) get(key []byte, out any) (bool, error) {
	raw, ok, err := s.r.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("decode %q: %w", key[:1], err)
	}
	return true, nil
}

func (s *LedgerStore) put(key []byte, v any) error {
	raw, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key[:1], err)
	}
	return s.txn.Put(key, raw)
}

func (s *LedgerReader) Config() (escrow.Config, bool, error) {
	var rec configRecord
	ok, err := s.get(keyConfig, &rec)
	if err != nil || !ok {
		return escrow.Config{}, ok, err
	}
	cfg := escrow.Config{Owner: rec.Owner, Guardian: rec.Guardian}
	if rec.Proposal != nil {
		cfg.Proposal = &escrow.OwnershipProposal{Owner: rec.Proposal.Owner, Expires: int64(rec.Proposal.Expires)}
	}
	return cfg, true, nil
}

func (s *LedgerStore) SaveConfig(cfg escrow.Config) error {
	rec := configRecord{Owner: cfg.Owner, Guardian: cfg.Guardian}
	if cfg.Proposal != nil {
		expires := cfg.Proposal.Expires
		if expires < 0 {
			expires = 0
		}
		rec.Proposal = &proposalRecord{Owner: cfg.Proposal.Owner, Expires: uint64(expires)}
	}
	return s.put(keyConfig, rec)
}

func (s *LedgerReader) Lock(addr common.Address) (escrow.Lock, bool, error) {
	var rec lockRecord
	ok, err := s.get(lockKey(addr), &rec)
	if err != nil || !ok {
		return escrow.Lock{}, ok, err
	}
	return rec.lock(), true, nil
}

func (rec lockRecord) lock() escrow.Lock {
	amount := rec.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return escrow.Lock{Amount: amount, Start: escrow.Period(rec.Start), End: escrow.Period(rec.End)}
}

func (s *LedgerReader) ForEachLock(fn func(common.Address, escrow.Lock) error) error {
	return s.r.Ascend(prefixLock, prefixEnd(prefixLock), func(key, value []byte) error {
		var rec lockRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return fmt.Errorf("decode lock: %w", err)
		}
		return fn(addrFromKey(key, prefixLock), rec.lock())
	})
}

func (s *LedgerStore) SaveLock(addr common.Address, lock escrow.Lock) error {
	return s.put(lockKey(addr), lockRecord{Amount: lock.Amount, Start: uint64(lock.Start), End: uint64(lock.End)})
}

func (s *LedgerStore) RemoveLock(addr common.Address) error {
	return s.txn.Delete(lockKey(addr))
}

func (s *LedgerReader) LastPoint(e escrow.Entity, p escrow.Period) (escrow.Point, bool, error) {
	prefix := historyPrefix(e)
	_, raw, ok, err := s.r.Last(prefix, upperBound(prefix, p))
	if err != nil || !ok {
		return escrow.Point{}, false, err
	}
	var rec pointRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return escrow.Point{}, false, fmt.Errorf("decode point of %s: %w", e, err)
	}
	power, err := rec.Power.rat()
	if err != nil {
		return escrow.Point{}, false, fmt.Errorf("point power of %s: %w", e, err)
	}
	slope, err := rec.Slope.rat()
	if err != nil {
		return escrow.Point{}, false, fmt.Errorf("point slope of %s: %w", e, err)
	}
	return escrow.Point{Power: power, Slope: slope, Start: escrow.Period(rec.Start), End: escrow.Period(rec.End)}, true, nil
}

func (s *LedgerStore) SavePoint(e escrow.Entity, pt escrow.Point) error {
	return s.put(historyKey(e, pt.Start), pointRecord{
		Power: encodeRat(pt.Power),
		Slope: encodeRat(pt.Slope),
		Start: uint64(pt.Start),
		End:   uint64(pt.End),
	})
}

func (s *LedgerReader) SlopeChange(p escrow.Period) (*big.Rat, bool, error) {
	var rec ratRecord
	ok, err := s.get(slopeKey(p), &rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	r, err := rec.rat()
	if err != nil {
		return nil, false, fmt.Errorf("slope change at %d: %w", p, err)
	}
	return r, true, nil
}

func (s *LedgerReader) SlopeChanges(after, through escrow.Period) ([]escrow.SlopeChange, error) {
	if through <= after {
		return nil, nil
	}
	var out []escrow.SlopeChange
	err := s.r.Ascend(upperBound(prefixSlope, after), upperBound(prefixSlope, through), func(key, value []byte) error {
		var rec ratRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return fmt.Errorf("decode slope change: %w", err)
		}
		slope, err := rec.rat()
		if err != nil {
			return err
		}
		p := escrow.Period(beUint64(key[len(prefixSlope):]))
		out = append(out, escrow.SlopeChange{Period: p, Slope: slope})
		return nil
	})
	return out, err
}

func (s *LedgerStore) SaveSlopeChange(p escrow.Period, slope *big.Rat) error {
	return s.put(slopeKey(p), encodeRat(slope))
}

func (s *LedgerStore) RemoveSlopeChange(p escrow.Period) error {
	return s.txn.Delete(slopeKey(p))
}

func (s *LedgerReader) Blacklisted(addr common.Address) (bool, error) {
	_, ok, err := s.r.Get(blacklistKey(addr))
	return ok, err
}

func (s *LedgerReader) Blacklist() ([]common.Address, error) {
	var out []common.Address
	err := s.r.Ascend(prefixBlacklist, prefixEnd(prefixBlacklist), func(key, _ []byte) error {
		out = append(out, addrFromKey(key, prefixBlacklist))
		return nil
	})
	return out, err
}

func (s *LedgerStore) SetBlacklisted(addr common.Address, blacklisted bool) error {
	if !blacklisted {
		return s.txn.Delete(blacklistKey(addr))
	}
	return s.txn.Put(blacklistKey(addr), []byte{1})
}

func (s *LedgerReader) SlopeCursor() (escrow.Period, bool, error) {
	var p uint64
	ok, err := s.get(keyCursor, &p)
	return escrow.Period(p), ok, err
}

func (s *LedgerStore) SaveSlopeCursor(p escrow.Period) error {
	return s.put(keyCursor, uint64(p))
}

// UpdateLedger runs fn against the ledger state in one atomic transaction.
func UpdateLedger(kv KV, fn func(*LedgerStore) error) error {
	return kv.Update(func(txn Txn) error {
		return fn(NewLedgerStore(txn))
	})
}

// ViewLedger runs fn against a read-only snapshot of the ledger state.
func ViewLedger(kv KV, fn func(*LedgerReader) error) error {
	return kv.View(func(r Reader) error {
		return fn(NewLedgerReader(r))
	})
}
