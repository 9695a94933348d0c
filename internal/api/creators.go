package api

import (
	"net/http"
	"regexp"

	"github.com/julienschmidt/httprouter"

	"github.com/tos-network/ledgervault/internal/apierr"
	"github.com/tos-network/ledgervault/internal/ledgercrypto"
)

// displayNamePattern enforces spec §3's creator shape: 3-255 chars,
// alphanumeric plus '_' and '-'.
var displayNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,255}$`)

type creatorView struct {
	CreatorID    string `json:"creator_id"`
	DisplayName  string `json:"display_name"`
	KeySize      int    `json:"key_size"`
	KeyAlgorithm string `json:"key_algorithm"`
	CreatedAt    string `json:"created_at"`
	BlockCount   int    `json:"block_count"`
}

// listCreators handles GET /creators (spec §6).
func (s *Server) listCreators(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	creators, counts, err := s.store.ListCreators(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	out := make([]creatorView, 0, len(creators))
	for _, c := range creators {
		keySize := 0
		if pub, err := ledgercrypto.ParseRSAPublicKeyPEM(c.PublicKey); err == nil {
			keySize = pub.N.BitLen()
		}
		out = append(out, creatorView{
			CreatorID:    c.ID,
			DisplayName:  c.DisplayName,
			KeySize:      keySize,
			KeyAlgorithm: "RSA",
			CreatedAt:    c.CreatedAt.Format(httpTimeFormat),
			BlockCount:   counts[c.ID],
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"creators": out})
}

type registerCreatorRequest struct {
	DisplayName  string `json:"display_name"`
	PublicKeyPEM string `json:"public_key_pem"`
}

// registerCreator handles POST /creators (spec §6). Creator registration is
// "specified only through the minimal contract used by blocks" per spec §1,
// so this handler covers just that contract: shape-validate display_name
// and public_key_pem, then persist.
func (s *Server) registerCreator(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req registerCreatorRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if !displayNamePattern.MatchString(req.DisplayName) {
		writeError(w, s.log, apierr.New(apierr.KindValidation, "display-name-invalid",
			"display_name must be 3-255 chars of letters, digits, '_' or '-'"))
		return
	}
	pub, err := ledgercrypto.ParseRSAPublicKeyPEM([]byte(req.PublicKeyPEM))
	if err != nil {
		writeError(w, s.log, apierr.WithDetails(apierr.KindValidation, "public-key-invalid",
			"public_key_pem must be a PEM-encoded RSA public key of at least 2048 bits",
			map[string]interface{}{"error": err.Error()}))
		return
	}

	existing, err := s.store.CreatorByDisplayName(r.Context(), req.DisplayName)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if existing != nil {
		writeError(w, s.log, apierr.New(apierr.KindConflict, "display-name-taken", "display_name is already registered"))
		return
	}

	created, err := s.store.RegisterCreator(r.Context(), req.DisplayName, []byte(req.PublicKeyPEM))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, creatorView{
		CreatorID:    created.ID,
		DisplayName:  created.DisplayName,
		KeySize:      pub.N.BitLen(),
		KeyAlgorithm: "RSA",
		CreatedAt:    created.CreatedAt.Format(httpTimeFormat),
		BlockCount:   0,
	})
}

// creatorPublicKey handles GET /creators/{display_name}/public-key (spec §6).
func (s *Server) creatorPublicKey(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	creator, err := s.store.CreatorByDisplayName(r.Context(), ps.ByName("display_name"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if creator == nil {
		writeError(w, s.log, apierr.CreatorMissing())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"creator_id":     creator.ID,
		"public_key_pem": string(creator.PublicKey),
	})
}

// creatorStats handles GET /creators/stats/summary (spec §6).
func (s *Server) creatorStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	creators, _, err := s.store.ListCreators(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	totalKeySize := 0
	parsed := 0
	for _, c := range creators {
		if pub, err := ledgercrypto.ParseRSAPublicKeyPEM(c.PublicKey); err == nil {
			totalKeySize += pub.N.BitLen()
			parsed++
		}
	}
	avgKeySize := 0.0
	if parsed > 0 {
		avgKeySize = float64(totalKeySize) / float64(parsed)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats": map[string]interface{}{
			"total_creators": len(creators),
			"avg_key_size":   avgKeySize,
		},
	})
}

const httpTimeFormat = "2006-01-02T15:04:05Z07:00"
