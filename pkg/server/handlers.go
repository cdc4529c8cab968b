package server

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/Layr-Labs/eigenx-request-signer/pkg/actions"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/authorizer"
	"github.com/Layr-Labs/eigenx-request-signer/pkg/requestSigner"
	"go.uber.org/zap"
)

type SignRequest struct {
	Action        string  `json:"action"`
	Name          string  `json:"name"`
	Amount        string  `json:"amount,omitempty"`
	TargetAddress string  `json:"targetAddress"`
	Timestamp     *uint64 `json:"timestamp,omitempty"`
}

type AddressResponse struct {
	Address string `json:"address"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	requestId := requestIdFromContext(r.Context())

	var req SignRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	kind, err := actions.ParseActionKind(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.authorizer.Authorize(r.Context(), &authorizer.ActionRequest{
		Kind:          kind,
		Name:          req.Name,
		Amount:        amount,
		TargetAddress: req.TargetAddress,
		Timestamp:     req.Timestamp,
	})
	if err != nil {
		if errors.Is(err, requestSigner.ErrSigningFailed) {
			s.logger.Error("Signing failed",
				zap.String("requestId", requestId),
				zap.String("action", kind.String()),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, "signing failed")
			return
		}
		s.logger.Debug("Rejected sign request",
			zap.String("requestId", requestId),
			zap.Error(err),
		)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("Signed request",
		zap.String("requestId", requestId),
		zap.String("action", kind.String()),
		zap.Uint64("timestamp", result.Timestamp),
	)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, AddressResponse{Address: s.authorizer.Address().Hex()})
}

func parseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New("amount must be a base-10 integer string")
	}
	return amount, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
