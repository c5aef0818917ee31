package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Mohsinsiddi/auctionbridge/internal/chain"
	"github.com/Mohsinsiddi/auctionbridge/internal/scale"
	"github.com/Mohsinsiddi/auctionbridge/internal/withdrawal"
	"go.uber.org/zap"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps domain errors onto HTTP status codes and stable codes.
func statusFor(err error) (int, string) {
	var (
		verr   *withdrawal.ValidationError
		terr   *withdrawal.TerminalStateError
		decErr *scale.DecodeError
		rpcErr *chain.RPCError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation"
	case errors.As(err, &terr):
		return http.StatusConflict, "terminal_state"
	case errors.Is(err, withdrawal.ErrWithdrawalNotFound):
		return http.StatusNotFound, "withdrawal_not_found"
	case errors.Is(err, withdrawal.ErrAmountMismatch):
		return http.StatusConflict, "amount_mismatch"
	case errors.Is(err, withdrawal.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, withdrawal.ErrWalletNotConnected):
		return http.StatusUnprocessableEntity, "wallet_not_connected"
	case errors.As(err, &decErr):
		return http.StatusBadGateway, "decode"
	case errors.Is(err, chain.ErrReverted), errors.Is(err, chain.ErrNoEndpoint), errors.As(err, &rpcErr):
		return http.StatusBadGateway, "chain"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
