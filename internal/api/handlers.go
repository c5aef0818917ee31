package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

const maxBody = 1 << 16

// Health reports liveness.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ListAuctions returns every open auction. ?fresh=true skips the listing
// cache, e.g. right after the caller placed a bid.
func ListAuctions(a Auctions, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if v := r.URL.Query().Get("fresh"); v != "" {
			fresh, err := strconv.ParseBool(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "fresh must be a boolean", Code: "validation"})
				return
			}
			if fresh {
				a.InvalidateListings()
			}
		}
		listings, err := a.OpenListings(r.Context())
		if err != nil {
			writeError(w, log, err)
			return
		}
		out := make([]auctionJSON, 0, len(listings))
		for _, l := range listings {
			out = append(out, toAuctionJSON(l))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GetAuction returns one auction, settled or not.
func GetAuction(a Auctions, now func() time.Time, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "auction id must be an unsigned integer", Code: "validation"})
			return
		}
		rec, err := a.GetAuction(r.Context(), id)
		if err != nil {
			writeError(w, log, err)
			return
		}
		if rec == nil {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "auction not found", Code: "auction_not_found"})
			return
		}
		l, err := auction.Describe(*rec, now())
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAuctionJSON(l))
	}
}

// PendingRefund returns the refund owed to an outbid bidder.
func PendingRefund(a Auctions, log *zap.Logger) http.HandlerFunc {
	return balanceHandler(a.PendingRefund, log)
}

// PendingPayout returns the proceeds owed to a seller.
func PendingPayout(a Auctions, log *zap.Logger) http.HandlerFunc {
	return balanceHandler(a.PendingPayout, log)
}

func balanceHandler(query func(context.Context, auction.Address) (*uint256.Int, error), log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := auction.ParseAddress(chi.URLParam(r, "address"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation"})
			return
		}
		v, err := query(r.Context(), addr)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toBalanceJSON(addr, v))
	}
}

// RequestWithdrawal issues a signed authorization.
func RequestWithdrawal(svc Withdrawals, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req withdrawalRequest
		if !decodeBody(w, r, &req) {
			return
		}
		auth, err := svc.Request(r.Context(), req.HolderID, req.Amount)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, auth)
	}
}

// GetWithdrawal returns the ledger row for a withdrawal.
func GetWithdrawal(svc Withdrawals, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wd, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toWithdrawalJSON(wd))
	}
}

// ConfirmWithdrawal settles a withdrawal with the holder's on-chain tx.
func ConfirmWithdrawal(svc Withdrawals, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmRequest
		if !decodeBody(w, r, &req) {
			return
		}
		c, err := svc.Confirm(r.Context(), chi.URLParam(r, "id"), req.TxHash, req.Amount)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, confirmationJSON{
			WithdrawalID: c.WithdrawalID,
			TxHash:       c.TxHash,
			Amount:       c.Amount.String(),
			NewBalance:   c.NewBalance.String(),
		})
	}
}

// CancelWithdrawal abandons a pending withdrawal.
func CancelWithdrawal(svc Withdrawals, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error(), Code: "validation"})
		return false
	}
	return true
}
