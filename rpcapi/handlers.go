package rpcapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/barrystyle/datos/inter"
	"github.com/barrystyle/datos/logger"
)

// Handler serves the REST routes.
type Handler struct {
	b   Backend
	now func() time.Time
	log *logrus.Entry
}

func NewHandler(b Backend) *Handler {
	return &Handler{b: b, now: time.Now, log: logger.New("rest")}
}

// RegisterRoutes mounts the REST routes and, when srv is not nil, the
// JSON-RPC endpoint at /rpc.
func RegisterRoutes(r *mux.Router, h *Handler, srv *rpc.Server) {
	r.HandleFunc("/staking/status", h.StakingStatus).Methods(http.MethodGet)
	r.HandleFunc("/proofs", h.ListProofs).Methods(http.MethodGet)
	r.HandleFunc("/proofs/{height:[0-9]+}", h.GetProof).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{ip}", h.GetNode).Methods(http.MethodGet)
	if srv != nil {
		r.Handle("/rpc", srv).Methods(http.MethodPost)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Debug("Failed to write response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// StakingStatus handles GET /staking/status.
func (h *Handler) StakingStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.b.Status(h.now()))
}

// ListProofs handles GET /proofs: the cached proofs near the tip, newest
// first.
func (h *Handler) ListProofs(w http.ResponseWriter, r *http.Request) {
	recent := h.b.Proofs().Recent(h.b.TipHeight())
	out := make([]Proof, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		out = append(out, NewProof(recent[i]))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// GetProof handles GET /proofs/{height}.
func (h *Handler) GetProof(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid height")
		return
	}
	np, ok := h.b.Proofs().GetByHeight(idx.Block(height))
	if !ok {
		h.writeError(w, http.StatusNotFound, "proof not found")
		return
	}
	h.writeJSON(w, http.StatusOK, NewProof(np))
}

// GetNode handles GET /nodes/{ip}.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	ip, err := inter.ParseIPv4(mux.Vars(r)["ip"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid node address")
		return
	}
	if _, ok := h.b.Scorer().Node(ip); !ok {
		h.writeError(w, http.StatusNotFound, "node not found")
		return
	}
	h.writeJSON(w, http.StatusOK, nodeInfo(h.b, ip))
}
