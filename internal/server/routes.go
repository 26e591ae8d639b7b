package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"voting-escrow/internal/escrow"
)

type effectsResponse struct {
	Action     string             `json:"action"`
	Attributes map[string]string  `json:"attributes"`
	Transfers  []transferResponse `json:"transfers,omitempty"`
}

type transferResponse struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type lockResponse struct {
	Account     string `json:"account"`
	Amount      string `json:"amount"`
	Start       uint64 `json:"start"`
	End         uint64 `json:"end"`
	Coefficient string `json:"coefficient"`
}

func (s *Server) handleCreateLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount  decimal.Decimal `json:"amount"`
		Periods uint64          `json:"periods"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := tokenAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, escrow.CreateLock{Amount: amount, Periods: escrow.Period(req.Periods)})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	user, ok := pathAccount(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := tokenAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, escrow.DepositFor{User: user, Amount: amount})
}

func (s *Server) handleExtendLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Periods uint64 `json:"periods"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.execute(w, r, escrow.ExtendLockTime{Periods: escrow.Period(req.Periods)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, escrow.Withdraw{})
}

func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAccount(w, r)
	if !ok {
		return
	}
	info, err := s.svc.LockInfo(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lockResponse{
		Account:     account.Hex(),
		Amount:      info.Amount.String(),
		Start:       uint64(info.Start),
		End:         uint64(info.End),
		Coefficient: info.Coefficient.RatString(),
	})
}

func (s *Server) handleGetBlacklist(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Blacklist(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Hex()
	}
	writeJSON(w, http.StatusOK, map[string]any{"addresses": out})
}

func (s *Server) handleUpdateBlacklist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Append []common.Address `json:"append"`
		Remove []common.Address `json:"remove"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.execute(w, r, escrow.UpdateBlacklist{Append: req.Append, Remove: req.Remove})
}

func (s *Server) handleTotalPower(w http.ResponseWriter, r *http.Request) {
	s.writePower(w, r, escrow.Global)
}

func (s *Server) handleAccountPower(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAccount(w, r)
	if !ok {
		return
	}
	s.writePower(w, r, escrow.AccountEntity(account))
}

func (s *Server) writePower(w http.ResponseWriter, r *http.Request, e escrow.Entity) {
	at, err := s.queryTime(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	power, err := s.svc.VotingPower(r.Context(), e, at)
	if err != nil {
		writeError(w, err)
		return
	}
	clock := s.svc.Ledger().Clock()
	writeJSON(w, http.StatusOK, map[string]any{
		"entity":       e.String(),
		"time":         at.UTC().Format(time.RFC3339),
		"period":       uint64(clock.Period(at)),
		"voting_power": power.String(),
	})
}

func (s *Server) handleProposeOwner(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewOwner  common.Address `json:"new_owner"`
		ExpiresIn string         `json:"expires_in"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	ttl, err := time.ParseDuration(req.ExpiresIn)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expires_in must be a duration"})
		return
	}
	s.execute(w, r, escrow.ProposeNewOwner{NewOwner: req.NewOwner, ExpiresIn: ttl})
}

func (s *Server) handleDropProposal(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, escrow.DropOwnershipProposal{})
}

func (s *Server) handleClaimOwnership(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, escrow.ClaimOwnership{})
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, cmd escrow.Command) {
	sender, err := senderOf(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	eff, err := s.svc.Execute(r.Context(), sender, cmd)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := effectsResponse{Action: eff.Action, Attributes: make(map[string]string, len(eff.Attributes))}
	for _, a := range eff.Attributes {
		resp.Attributes[a.Key] = a.Value
	}
	for _, t := range eff.Transfers {
		resp.Transfers = append(resp.Transfers, transferResponse{To: t.To.Hex(), Amount: t.Amount.String()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func senderOf(r *http.Request) (common.Address, error) {
	raw := r.Header.Get(SenderHeader)
	if raw == "" {
		return common.Address{}, fmt.Errorf("%s header required", SenderHeader)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s header", SenderHeader)
	}
	return common.HexToAddress(raw), nil
}

func pathAccount(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "account")
	if !common.IsHexAddress(raw) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

// tokenAmount accepts whole token units only.
func tokenAmount(d decimal.Decimal) (*big.Int, error) {
	if !d.IsInteger() || d.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", escrow.ErrInvalidAmount, d.String())
	}
	return d.BigInt(), nil
}

// queryTime reads ?time= as RFC3339 or unix seconds, or ?period= as a period
// index. Without either it is the current time.
func (s *Server) queryTime(r *http.Request) (time.Time, error) {
	q := r.URL.Query()
	if raw := q.Get("period"); raw != "" {
		p, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid period %q", raw)
		}
		return s.svc.Ledger().Clock().Start(escrow.Period(p)), nil
	}
	raw := q.Get("time")
	if raw == "" {
		return s.svc.Now(), nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", raw)
	}
	return t, nil
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, escrow.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, escrow.ErrLockDoesntExist),
		errors.Is(err, escrow.ErrOwnershipProposalNotFound):
		return http.StatusNotFound
	case errors.Is(err, escrow.ErrLockAlreadyExists),
		errors.Is(err, escrow.ErrLockExpired),
		errors.Is(err, escrow.ErrLockHasNotExpired),
		errors.Is(err, escrow.ErrAddressBlacklisted),
		errors.Is(err, escrow.ErrOwnershipProposalExpired),
		errors.Is(err, escrow.ErrStalePeriod):
		return http.StatusConflict
	case errors.Is(err, escrow.ErrLockTimeLimits),
		errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrEmptyUpdate),
		errors.Is(err, escrow.ErrInvalidProposal):
		return http.StatusBadRequest
	case errors.Is(err, escrow.ErrNotInstantiated):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
