package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mynextid/email-zk/circuit"
	"github.com/mynextid/email-zk/codec"
	"github.com/mynextid/email-zk/commitment"
	"github.com/mynextid/email-zk/dkim"
	"github.com/mynextid/email-zk/prover"
	"github.com/mynextid/email-zk/regexapi"
	"github.com/mynextid/email-zk/shapad"
)

// Server handles HTTP requests for circuit input generation and
// prover relaying.
type Server struct {
	resolver dkim.Resolver
	prover   *prover.Client
}

// NewServer creates a new HTTP server. The prover client may be nil,
// in which case the relay endpoints respond 503.
func NewServer(resolver dkim.Resolver, proverClient *prover.Client) *Server {
	return &Server{
		resolver: resolver,
		prover:   proverClient,
	}
}

// ==== Request/Response Types ====

// EmailInputsRequest asks for email-auth circuit inputs.
type EmailInputsRequest struct {
	Email       string                     `json:"email"`
	AccountCode string                     `json:"accountCode"`
	Params      circuit.EmailCircuitParams `json:"params"`
}

// RegexInputsRequest asks for generic circuit inputs driven by
// decomposed regexes.
type RegexInputsRequest struct {
	Email             string                     `json:"email"`
	DecomposedRegexes []circuit.DecomposedRegex  `json:"decomposedRegexes"`
	ExternalInputs    []circuit.ExternalInput    `json:"externalInputs"`
	Params            circuit.RegexCircuitParams `json:"params"`
}

// AccountSaltRequest asks for the salt bound to an email address and
// account code.
type AccountSaltRequest struct {
	EmailAddress string `json:"emailAddress"`
	AccountCode  string `json:"accountCode"`
}

// AccountSaltResponse carries the derived salt.
type AccountSaltResponse struct {
	AccountSalt string `json:"accountSalt"`
}

// RelayProveRequest carries circuit inputs to forward to the remote
// prover.
type RelayProveRequest struct {
	Input json.RawMessage `json:"input"`
}

// RelayProveResponse carries the proof as EVM calldata plus the
// public signals.
type RelayProveResponse struct {
	Proof      string   `json:"proof"`
	PubSignals []string `json:"pubSignals"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ==== Handlers ====

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// HandleEmailInputs generates email-auth circuit inputs from a raw
// DKIM-signed email.
func (s *Server) HandleEmailInputs(w http.ResponseWriter, r *http.Request) {
	var req EmailInputsRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Email == "" {
		respondError(w, http.StatusBadRequest, "missing_input", "email is required")
		return
	}

	code, err := commitment.AccountCodeFromHex(req.AccountCode)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_account_code",
			fmt.Sprintf("invalid account code: %v", err))
		return
	}

	if err := dkim.VerifyWithLibrary(r.Context(), []byte(req.Email), s.resolver); err != nil {
		respondGenerationError(w, err)
		return
	}

	inputs, err := circuit.GenerateEmailCircuitInput(r.Context(), req.Email, &code, &req.Params, s.resolver)
	if err != nil {
		respondGenerationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(inputs)
}

// HandleRegexInputs generates circuit inputs driven by caller-supplied
// decomposed regexes and external inputs.
func (s *Server) HandleRegexInputs(w http.ResponseWriter, r *http.Request) {
	var req RegexInputsRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Email == "" {
		respondError(w, http.StatusBadRequest, "missing_input", "email is required")
		return
	}

	if err := dkim.VerifyWithLibrary(r.Context(), []byte(req.Email), s.resolver); err != nil {
		respondGenerationError(w, err)
		return
	}

	if req.Params.MaxHeaderLength == 0 {
		req.Params.MaxHeaderLength = circuit.MaxHeaderPaddedBytes
	}
	if req.Params.MaxBodyLength == 0 {
		req.Params.MaxBodyLength = circuit.MaxBodyPaddedBytes
	}

	inputs, err := circuit.GenerateCircuitInputsWithDecomposedRegexes(
		r.Context(), req.Email, req.DecomposedRegexes, req.ExternalInputs, req.Params, s.resolver)
	if err != nil {
		respondGenerationError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, inputs)
}

// HandleAccountSalt derives the account salt for an email address and
// account code.
func (s *Server) HandleAccountSalt(w http.ResponseWriter, r *http.Request) {
	var req AccountSaltRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.EmailAddress == "" || req.AccountCode == "" {
		respondError(w, http.StatusBadRequest, "missing_input",
			"emailAddress and accountCode are required")
		return
	}

	salt, err := commitment.CalculateAccountSalt(req.EmailAddress, req.AccountCode)
	if err != nil {
		respondGenerationError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, AccountSaltResponse{AccountSalt: salt})
}

// HandleRelayProve forwards circuit inputs to the remote prover and
// returns the proof together with its calldata encoding.
func (s *Server) HandleRelayProve(w http.ResponseWriter, r *http.Request) {
	if s.prover == nil {
		respondError(w, http.StatusServiceUnavailable, "prover_unavailable",
			"no prover configured")
		return
	}

	request := chi.URLParam(r, "request")

	var req RelayProveRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if len(req.Input) == 0 {
		respondError(w, http.StatusBadRequest, "missing_input", "input is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	proof, signals, err := s.prover.Prove(ctx, request, req.Input)
	if err != nil {
		respondError(w, http.StatusBadGateway, "prover_failed",
			fmt.Sprintf("prover request failed: %v", err))
		return
	}

	sigStrs := make([]string, len(signals))
	for i, sig := range signals {
		sigStrs[i] = sig.String()
	}

	respondJSON(w, http.StatusOK, RelayProveResponse{
		Proof:      fmt.Sprintf("0x%x", proof),
		PubSignals: sigStrs,
	})
}

// ==== Helper Functions ====

// decodeRequest reads and parses a JSON request body, responding with
// an error itself when that fails.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request",
			"failed to read request body")
		return false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json",
			fmt.Sprintf("failed to parse request: %v", err))
		return false
	}
	return true
}

// respondGenerationError maps input-generation failures onto HTTP
// statuses: caller mistakes are 4xx, everything else 500.
func respondGenerationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, codec.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, dkim.ErrVerification),
		errors.Is(err, dkim.ErrNoSignature),
		errors.Is(err, dkim.ErrBodyHashMismatch),
		errors.Is(err, dkim.ErrNoKey):
		respondError(w, http.StatusUnprocessableEntity, "dkim_verification_failed", err.Error())
	case errors.Is(err, regexapi.ErrNoMatch):
		respondError(w, http.StatusUnprocessableEntity, "extraction_not_found", err.Error())
	case errors.Is(err, shapad.ErrSelectorNotFound),
		errors.Is(err, shapad.ErrRemainingBodyTooLong),
		errors.Is(err, shapad.ErrMessageTooLong),
		errors.Is(err, shapad.ErrMisalignedPadding):
		respondError(w, http.StatusUnprocessableEntity, "padding_constraint_violation", err.Error())
	case errors.Is(err, commitment.ErrCrypto):
		respondError(w, http.StatusInternalServerError, "crypto_error", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "input_generation_failed", err.Error())
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      code,
		Timestamp: time.Now(),
	})
}
