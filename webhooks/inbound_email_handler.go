package webhooks

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/coreybb/courier/ingestion"
	"github.com/coreybb/courier/models"
	"github.com/coreybb/courier/webutil"
)

// maxWebhookBodyBytes bounds how much of a delivery we buffer. The body is
// read exactly once; every parser strategy gets its own view of the buffer.
const maxWebhookBodyBytes = 32 << 20

// InboundEmailHandler exposes the ingestion pipeline over HTTP.
type InboundEmailHandler struct {
	Orchestrator *ingestion.Orchestrator
}

func NewInboundEmailHandler(orchestrator *ingestion.Orchestrator) *InboundEmailHandler {
	return &InboundEmailHandler{Orchestrator: orchestrator}
}

// HandleInbound dispatches by method: OPTIONS is acknowledged for CORS
// preflights, POST runs the pipeline, and anything else is a 405.
func (h *InboundEmailHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodPost:
		h.handlePost(w, r)
	default:
		webutil.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *InboundEmailHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		webutil.RespondWithError(w, http.StatusBadRequest, "Could not read request body")
		return
	}
	defer r.Body.Close()

	result, err := h.Orchestrator.Ingest(r.Context(), r.Header.Get("Content-Type"), body)
	if err != nil {
		h.respondWithClassifiedError(w, r, err)
		return
	}

	if result.Skipped {
		respondSkipped(w, result)
		return
	}
	respondCreated(w, result.Newsletter)
}

// respondWithClassifiedError maps the pipeline's error taxonomy onto the
// HTTP surface. A blocked source creation is a 400 even though quota
// exhaustion is a 200 skip; the former blocks an explicit user action.
func (h *InboundEmailHandler) respondWithClassifiedError(w http.ResponseWriter, r *http.Request, err error) {
	var parseErr *ingestion.ParseError
	var authErr *ingestion.AuthError
	var sourceLimitErr *ingestion.SourceLimitError

	switch {
	case errors.As(err, &parseErr):
		log.Printf("WARN (InboundEmailHandler): Rejecting unparseable delivery: %v", err)
		webutil.RespondWithError(w, http.StatusBadRequest, "Could not parse webhook payload")

	case errors.As(err, &authErr):
		if authErr.MissingParams {
			webutil.RespondWithError(w, http.StatusBadRequest, "Missing signature parameters")
			return
		}
		log.Printf("WARN (InboundEmailHandler): Signature verification failed for delivery from %s", r.RemoteAddr)
		webutil.RespondWithError(w, http.StatusForbidden, "Invalid signature")

	case errors.As(err, &sourceLimitErr):
		webutil.RespondWithError(w, http.StatusBadRequest, sourceLimitErr.Error())

	default:
		log.Printf("ERROR (InboundEmailHandler): Ingestion failed: %v", err)
		webutil.RespondWithError(w, http.StatusInternalServerError, "Internal server error processing email")
	}
}

func respondCreated(w http.ResponseWriter, newsletter *models.Newsletter) {
	webutil.RespondWithJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"newsletterId": newsletter.ID,
			"sourceId":     newsletter.SourceID,
			"title":        newsletter.Title,
		},
	})
}

func respondSkipped(w http.ResponseWriter, result ingestion.Result) {
	data := map[string]any{
		"skipped": true,
		"reason":  string(result.SkipReason),
	}
	if result.SkipMessage != "" {
		data["message"] = result.SkipMessage
	}
	webutil.RespondWithJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"skipped":    true,
		"skipReason": string(result.SkipReason),
		"data":       data,
	})
}
