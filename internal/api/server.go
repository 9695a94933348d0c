// Package api implements the HTTP surface from spec §6: creator
// registration/listing, the two-phase mining protocol, paginated block
// reads, per-creator encrypted envelopes, and health. Routing follows the
// teacher go.mod's julienschmidt/httprouter, with rs/cors fronting it since
// the browser client (out of scope per spec §1) is a distinct origin.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/tos-network/ledgervault/internal/apierr"
	"github.com/tos-network/ledgervault/internal/chainstore"
	"github.com/tos-network/ledgervault/internal/mining"
)

// Store is the subset of chainstore.Store the API depends on.
type Store interface {
	RegisterCreator(ctx context.Context, displayName string, publicKeyPEM []byte) (chainstore.Creator, error)
	ListCreators(ctx context.Context) ([]chainstore.Creator, map[string]int, error)
	CreatorByDisplayName(ctx context.Context, displayName string) (*chainstore.Creator, error)
	PaginatedRead(ctx context.Context, q chainstore.PageQuery) ([]chainstore.Block, int, error)
	Summary(ctx context.Context) (chainstore.Stats, error)
	BlocksForCreator(ctx context.Context, creatorID string) ([]chainstore.Block, error)
	Tip() *chainstore.Block
	Ping(ctx context.Context) error
}

// Coordinator is the subset of mining.Coordinator the API depends on.
type Coordinator interface {
	PrepareMining(ctx context.Context, displayName string) (*mining.Preparation, error)
	CommitBlock(ctx context.Context, payload mining.CommitPayload) (*mining.CommitResult, error)
}

// PeerCounter is the subset of gossip.Hub the API depends on for /health.
type PeerCounter interface {
	PeerCount() int
}

// Server wires the HTTP handlers to their collaborators (spec §9: "the
// peer gossip refers to the Chain Store; both are injected into HTTP
// handlers", modeled as explicit constructor-injected dependencies).
type Server struct {
	store       Store
	coordinator Coordinator
	peers       PeerCounter
	maxDataSize int
	log         *zap.Logger

	handler http.Handler
}

// New builds a Server and its route table.
func New(store Store, coordinator Coordinator, peers PeerCounter, maxDataSize int, log *zap.Logger) *Server {
	s := &Server{store: store, coordinator: coordinator, peers: peers, maxDataSize: maxDataSize, log: log}

	router := httprouter.New()
	router.GET("/creators", s.listCreators)
	router.POST("/creators", s.registerCreator)
	router.GET("/creators/:display_name/public-key", s.creatorPublicKey)
	router.GET("/creators/stats/summary", s.creatorStats)
	router.GET("/blocks", s.listBlocks)
	router.POST("/blocks/prepare-mining", s.prepareMining)
	router.POST("/blocks/commit", s.commitBlock)
	router.GET("/blocks/stats/summary", s.blockStats)
	router.GET("/decrypt/blocks/:creator_id", s.decryptBlocks)
	router.GET("/health", s.health)

	s.handler = cors.Default().Handler(router)
	return s
}

// ServeHTTP lets Server be passed directly to http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the shape every non-2xx response takes (spec §6/§7).
type errorResponse struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// writeError classifies err as an *apierr.Error when possible and writes
// the matching HTTP status; anything else is a 500 internal error.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		apiErr = apierr.Internal(err)
	}
	status := "fail"
	if apiErr.Status() >= 500 {
		status = "error"
		log.Error("api: internal error", zap.Error(err))
	}
	writeJSON(w, apiErr.Status(), errorResponse{
		Status:    status,
		Message:   apiErr.Message,
		Code:      apiErr.Code,
		Details:   apiErr.Details,
		Timestamp: time.Now().UTC(),
	})
}

func decodeJSONBody(r *http.Request, v interface{}) *apierr.Error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierr.New(apierr.KindValidation, "body-invalid", "request body is not valid JSON: "+err.Error())
	}
	return nil
}
