// Package api exposes a Ledger over HTTP with JSON bodies.
//
// Routes:
//
//	POST /keys/register   {publicKey, fingerprint, curve}
//	POST /tx/submit       {tx, sig}
//	GET  /chain/verify
//	GET  /chain/meta
//	GET  /accounts/{account}
//	GET  /healthz
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/fpledger/internal/assembler"
	"github.com/roach88/fpledger/internal/crypto"
	"github.com/roach88/fpledger/internal/identity"
	"github.com/roach88/fpledger/internal/ir"
	"github.com/roach88/fpledger/internal/ledger"
	"github.com/roach88/fpledger/internal/verify"
)

// Codes for failures that are not ledger validation codes.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeInvalidKey   = "INVALID_KEY"
	CodeAlreadyBound = "ALREADY_BOUND"
	CodeInternal     = "INTERNAL"
)

// Ledger is the subset of ledger.Ledger the transport needs.
type Ledger interface {
	Register(ctx context.Context, publicKey string, curve crypto.Curve, fingerprint string) (ir.Binding, error)
	Submit(ctx context.Context, txs ...ir.Transaction) (ir.Block, error)
	Verify(ctx context.Context) (verify.Result, error)
	Meta(ctx context.Context) (ir.ChainMeta, error)
	Account(ctx context.Context, account string) (ledger.Account, error)
}

type registerRequest struct {
	PublicKey   string `json:"publicKey"`
	Fingerprint string `json:"fingerprint"`
	Curve       string `json:"curve"`
}

type registerResponse struct {
	OK              bool   `json:"ok"`
	FingerprintHash string `json:"fingerprintHash"`
}

// TxBody is the wire form of an unsigned transaction.
type TxBody struct {
	ID               string `json:"id"`
	Kind             string `json:"kind,omitempty"`
	From             string `json:"from"`
	To               string `json:"to"`
	Amount           string `json:"amount"`
	Nonce            int64  `json:"nonce"`
	FingerprintProof string `json:"fingerprintProof"`
	Curve            string `json:"curve"`
}

// SubmitRequest carries one transaction and its detached signature.
type SubmitRequest struct {
	Tx  TxBody `json:"tx"`
	Sig string `json:"sig"`
}

// NewSubmitRequest splits a signed transaction into its wire form.
func NewSubmitRequest(tx ir.Transaction) SubmitRequest {
	return SubmitRequest{
		Tx: TxBody{
			ID:               tx.ID,
			Kind:             string(tx.Kind),
			From:             tx.From,
			To:               tx.To,
			Amount:           tx.Amount,
			Nonce:            tx.Nonce,
			FingerprintProof: tx.FingerprintProof,
			Curve:            string(tx.Curve),
		},
		Sig: tx.Signature,
	}
}

// Transaction joins the body and signature back into a ledger transaction.
func (r SubmitRequest) Transaction() ir.Transaction {
	return ir.Transaction{
		ID:               r.Tx.ID,
		Kind:             ir.TxKind(r.Tx.Kind),
		From:             r.Tx.From,
		To:               r.Tx.To,
		Amount:           r.Tx.Amount,
		Nonce:            r.Tx.Nonce,
		FingerprintProof: r.Tx.FingerprintProof,
		Curve:            crypto.Curve(r.Tx.Curve),
		Signature:        r.Sig,
	}
}

type submitResponse struct {
	OK    bool     `json:"ok"`
	Block ir.Block `json:"block"`
}

// VerifyResponse is the body of GET /chain/verify. Height and Tip are set
// on success; the failure fields otherwise.
type VerifyResponse struct {
	OK         bool   `json:"ok"`
	Height     int64  `json:"height,omitempty"`
	Tip        string `json:"tip,omitempty"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
	BlockIndex *int64 `json:"blockIndex,omitempty"`
	TxID       string `json:"txId,omitempty"`
}

// NewVerifyResponse converts a verification result to its wire form.
func NewVerifyResponse(res verify.Result) VerifyResponse {
	if res.OK || res.Failure == nil {
		return VerifyResponse{OK: res.OK, Height: res.Height, Tip: res.Tip}
	}
	idx := res.Failure.BlockIndex
	return VerifyResponse{
		OK:         false,
		Error:      res.Failure.Reason,
		Code:       string(res.Failure.Code),
		BlockIndex: &idx,
		TxID:       res.Failure.TxID,
	}
}

// Server handles HTTP requests for one ledger.
type Server struct {
	ledger Ledger
	logger *slog.Logger
}

// New creates a Server. A nil logger uses slog.Default().
func New(l Ledger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{ledger: l, logger: logger}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Post("/keys/register", s.handleRegister)
	r.Post("/tx/submit", s.handleSubmit)
	r.Route("/chain", func(r chi.Router) {
		r.Get("/verify", s.handleVerify)
		r.Get("/meta", s.handleMeta)
	})
	r.Get("/accounts/{account}", s.handleAccount)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), "")
		return
	}
	if req.PublicKey == "" || req.Fingerprint == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "publicKey and fingerprint are required", "")
		return
	}

	b, err := s.ledger.Register(r.Context(), req.PublicKey, crypto.Curve(req.Curve), req.Fingerprint)
	switch {
	case errors.Is(err, identity.ErrAlreadyBound):
		writeError(w, http.StatusConflict, CodeAlreadyBound, err.Error(), "")
		return
	case errors.Is(err, crypto.ErrInvalidKey), errors.Is(err, crypto.ErrUnsupportedCurve):
		writeError(w, http.StatusBadRequest, CodeInvalidKey, err.Error(), "")
		return
	case errors.Is(err, identity.ErrInvalidFingerprint):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error(), "")
		return
	case err != nil:
		s.logger.Error("register failed", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "registration failed", "")
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{OK: true, FingerprintHash: b.FingerprintHash})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(ir.CodeMalformedTransaction), err.Error(), "")
		return
	}

	b, err := s.ledger.Submit(r.Context(), req.Transaction())
	if err != nil {
		var ve *assembler.ValidationError
		if errors.As(err, &ve) {
			writeError(w, StatusForCode(ve.Code), string(ve.Code), ve.Error(), ve.TxID)
			return
		}
		s.logger.Error("submit failed", "tx", req.Tx.ID, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "block was not stored", req.Tx.ID)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{OK: true, Block: b})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	res, err := s.ledger.Verify(r.Context())
	if err != nil {
		s.logger.Error("verify failed", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "verification could not run", "")
		return
	}
	writeJSON(w, http.StatusOK, NewVerifyResponse(res))
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	meta, err := s.ledger.Meta(r.Context())
	if err != nil {
		s.logger.Error("meta failed", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "could not read chain meta", "")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.ledger.Account(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		s.logger.Error("account failed", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "could not read account", "")
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// StatusForCode maps a validation code to its HTTP status.
func StatusForCode(code ir.ErrorCode) int {
	switch code {
	case ir.CodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case ir.CodeNonMonotonicNonce:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
