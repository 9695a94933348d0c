package api

import (
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/tos-network/ledgervault/internal/apierr"
	"github.com/tos-network/ledgervault/internal/chainstore"
	"github.com/tos-network/ledgervault/internal/mining"
)

type blockView struct {
	BlockID          int64   `json:"block_id"`
	BlockNumber      int64   `json:"block_number"`
	PreviousHash     *string `json:"previous_hash"`
	BlockHash        string  `json:"block_hash"`
	EncryptedData    string  `json:"encrypted_data"`
	DataIV           string  `json:"data_iv"`
	EncryptedDataKey string  `json:"encrypted_data_key"`
	Nonce            string  `json:"nonce"`
	Difficulty       int     `json:"difficulty"`
	CreatorID        string  `json:"creator_id"`
	Signature        string  `json:"signature"`
	DataSize         int     `json:"data_size"`
	MiningDurationMs int64   `json:"mining_duration_ms"`
	CreatedAt        string  `json:"created_at"`
	Verified         bool    `json:"verified"`
	VerifiedAt       *string `json:"verified_at"`
}

func toBlockView(b chainstore.Block) blockView {
	var verifiedAt *string
	if b.VerifiedAt != nil {
		s := b.VerifiedAt.Format(httpTimeFormat)
		verifiedAt = &s
	}
	return blockView{
		BlockID:          b.BlockID,
		BlockNumber:      b.BlockNumber,
		PreviousHash:     b.PreviousHash,
		BlockHash:        b.BlockHash,
		EncryptedData:    hex.EncodeToString(b.EncryptedData),
		DataIV:           hex.EncodeToString(b.DataIV),
		EncryptedDataKey: hex.EncodeToString(b.EncryptedDataKey),
		Nonce:            strconv.FormatUint(b.Nonce, 10),
		Difficulty:       b.Difficulty,
		CreatorID:        b.CreatorID,
		Signature:        hex.EncodeToString(b.Signature),
		DataSize:         b.DataSize,
		MiningDurationMs: b.MiningDurationMs,
		CreatedAt:        b.CreatedAt.Format(httpTimeFormat),
		Verified:         b.Verified,
		VerifiedAt:       verifiedAt,
	}
}

// listBlocks handles GET /blocks (spec §6): query params page, limit,
// verified=all|true|false, sortBy=newest|oldest|block_number.
func (s *Server) listBlocks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	verified := q.Get("verified")
	if verified == "" {
		verified = "all"
	}
	sortBy := q.Get("sortBy")
	if sortBy == "" {
		sortBy = "newest"
	}

	blocks, total, err := s.store.PaginatedRead(r.Context(), chainstore.PageQuery{
		Page: page, Limit: limit, Verified: verified, SortBy: sortBy,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	views := make([]blockView, 0, len(blocks))
	for _, b := range blocks {
		views = append(views, toBlockView(b))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"blocks": views,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

type prepareMiningRequest struct {
	DisplayName string `json:"display_name"`
	DataText    string `json:"data_text"`
}

// prepareMining handles POST /blocks/prepare-mining, phase 1 of spec §4.2.
func (s *Server) prepareMining(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req prepareMiningRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if len(req.DataText) > s.maxDataSize {
		writeError(w, s.log, apierr.WithDetails(apierr.KindValidation, "data-too-large",
			"data_text exceeds MAX_DATA_SIZE", map[string]interface{}{"max_data_size": s.maxDataSize}))
		return
	}

	prep, err := s.coordinator.PrepareMining(r.Context(), req.DisplayName)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"creator_id":        prep.CreatorID,
		"public_key_pem":     string(prep.PublicKeyPEM),
		"previous_hash":      prep.PreviousHash,
		"difficulty":         prep.Difficulty,
		"mining_timeout_ms":  prep.MiningTimeoutMs,
	})
}

type commitBlockRequest struct {
	CreatorID        string `json:"creator_id"`
	PreviousHash     string `json:"previous_hash"`
	BlockHash        string `json:"block_hash"`
	Nonce            string `json:"nonce"`
	Difficulty       int    `json:"difficulty"`
	EncryptedData    string `json:"encrypted_data"`
	DataIV           string `json:"data_iv"`
	EncryptedDataKey string `json:"encrypted_data_key"`
	DataSize         int    `json:"data_size"`
	Signature        string `json:"signature"`
	CreatedAt        string `json:"created_at"`
	MiningDurationMs int    `json:"mining_duration_ms"`
}

// commitBlock handles POST /blocks/commit, phase 2 of spec §4.2. All binary
// fields arrive as lowercase hex per spec §6.
func (s *Server) commitBlock(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req commitBlockRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}

	encryptedData, err := hex.DecodeString(req.EncryptedData)
	if err != nil {
		writeError(w, s.log, apierr.ShapeInvalid("encrypted_data is not valid hex"))
		return
	}
	dataIV, err := hex.DecodeString(req.DataIV)
	if err != nil {
		writeError(w, s.log, apierr.ShapeInvalid("data_iv is not valid hex"))
		return
	}
	encryptedDataKey, err := hex.DecodeString(req.EncryptedDataKey)
	if err != nil {
		writeError(w, s.log, apierr.ShapeInvalid("encrypted_data_key is not valid hex"))
		return
	}
	signature, err := hex.DecodeString(req.Signature)
	if err != nil {
		writeError(w, s.log, apierr.ShapeInvalid("signature is not valid hex"))
		return
	}

	result, err := s.coordinator.CommitBlock(r.Context(), mining.CommitPayload{
		CreatorID:        req.CreatorID,
		PreviousHash:     req.PreviousHash,
		BlockHash:        req.BlockHash,
		Nonce:            req.Nonce,
		Difficulty:       req.Difficulty,
		EncryptedData:    encryptedData,
		DataIV:           dataIV,
		EncryptedDataKey: encryptedDataKey,
		DataSize:         req.DataSize,
		Signature:        signature,
		CreatedAt:        req.CreatedAt,
		MiningDurationMs: int64(req.MiningDurationMs),
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	status := http.StatusCreated
	outcome := "appended"
	if result.Outcome == chainstore.AppendDuplicate {
		outcome = "duplicate"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": outcome,
		"block":  toBlockView(result.Block),
	})
}

// blockStats handles GET /blocks/stats/summary (spec §6).
func (s *Server) blockStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats, err := s.store.Summary(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats": map[string]interface{}{
			"total_blocks":       stats.TotalBlocks,
			"verified_blocks":    stats.VerifiedBlocks,
			"pending_blocks":     stats.PendingBlocks,
			"avg_mining_time_ms": stats.AvgMiningTimeMs,
			"avg_difficulty":     stats.AvgDifficulty,
		},
	})
}

type decryptEnvelope struct {
	BlockID          int64  `json:"block_id"`
	BlockNumber      int64  `json:"block_number"`
	BlockHash        string `json:"block_hash"`
	CreatedAt        string `json:"created_at"`
	EncryptedData    string `json:"encrypted_data"`
	DataIV           string `json:"data_iv"`
	EncryptedDataKey string `json:"encrypted_data_key"`
	DataSize         int    `json:"data_size"`
	Verified         bool   `json:"verified"`
}

// decryptBlocks handles GET /decrypt/blocks/{creator_id} (spec §6): the
// minimal fields a client needs to decrypt offline, base64-encoded per the
// spec table (distinct from /blocks's hex encoding — this endpoint exists
// for direct consumption by the browser client's decrypt flow).
func (s *Server) decryptBlocks(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	blocks, err := s.store.BlocksForCreator(r.Context(), ps.ByName("creator_id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	out := make([]decryptEnvelope, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, decryptEnvelope{
			BlockID:          b.BlockID,
			BlockNumber:      b.BlockNumber,
			BlockHash:        b.BlockHash,
			CreatedAt:        b.CreatedAt.Format(httpTimeFormat),
			EncryptedData:    base64.StdEncoding.EncodeToString(b.EncryptedData),
			DataIV:           base64.StdEncoding.EncodeToString(b.DataIV),
			EncryptedDataKey: base64.StdEncoding.EncodeToString(b.EncryptedDataKey),
			DataSize:         b.DataSize,
			Verified:         b.Verified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"blocks": out})
}
