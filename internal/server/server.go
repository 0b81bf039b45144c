// Package server exposes the deployment directory over a read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Bidon15/ubexdeploy/internal/deploy"
	"github.com/Bidon15/ubexdeploy/internal/directory"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DeploymentResponse is the API representation of a deployment.
type DeploymentResponse struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	DeployedAt  string `json:"deployed_at,omitempty"`
}

func toDeploymentResponse(d deploy.Deployment) DeploymentResponse {
	resp := DeploymentResponse{
		Name:        d.Name,
		Address:     d.Address.Hex(),
		BlockNumber: d.BlockNumber,
	}
	if d.TxHash != (common.Hash{}) {
		resp.TxHash = d.TxHash.Hex()
	}
	if !d.DeployedAt.IsZero() {
		resp.DeployedAt = d.DeployedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Handler serves directory lookups.
type Handler struct {
	dir     directory.Directory
	metrics http.Handler
	logger  *slog.Logger
}

// NewHandler creates a handler. metrics may be nil.
func NewHandler(dir directory.Directory, metrics http.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{dir: dir, metrics: metrics, logger: logger}
}

// Routes returns a chi router with all routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Route("/v1/networks/{network}/deployments", func(r chi.Router) {
		r.Get("/", h.ListDeployments)
		r.Get("/{name}", h.GetDeployment)
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	return r
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Data: map[string]string{"status": "ok"}})
}

// ListDeployments handles GET /v1/networks/{network}/deployments
func (h *Handler) ListDeployments(w http.ResponseWriter, r *http.Request) {
	network := chi.URLParam(r, "network")

	deployments, err := h.dir.List(r.Context(), network)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	resp := make([]DeploymentResponse, 0, len(deployments))
	for _, d := range deployments {
		resp = append(resp, toDeploymentResponse(d))
	}
	writeJSON(w, http.StatusOK, Response{Data: resp})
}

// GetDeployment handles GET /v1/networks/{network}/deployments/{name}
func (h *Handler) GetDeployment(w http.ResponseWriter, r *http.Request) {
	network := chi.URLParam(r, "network")
	name := chi.URLParam(r, "name")

	d, err := h.dir.Get(r.Context(), network, name)
	if errors.Is(err, directory.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, Response{Error: &APIError{
			Code:    "not_found",
			Message: name + " is not deployed on " + network,
		}})
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: toDeploymentResponse(d)})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("directory lookup failed",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, Response{Error: &APIError{
		Code:    "internal_error",
		Message: "directory lookup failed",
	}})
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Serve runs an HTTP server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("directory API listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
