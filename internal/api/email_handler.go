package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sungwon/mailbridge/internal/logger"
	"github.com/sungwon/mailbridge/internal/request"
	"github.com/sungwon/mailbridge/internal/storage"
)

// maxEmailBodyBytes caps the intake request body.
const maxEmailBodyBytes = 1 << 20

// EmailStore creates and reads email request records.
type EmailStore interface {
	Create(ctx context.Context, req request.EmailRequest) (string, error)
	Get(ctx context.Context, id string) (*storage.Record, error)
}

// Publisher announces a created record to the trigger source.
type Publisher interface {
	Publish(ctx context.Context, id string) (string, error)
}

type createEmailResponse struct {
	ID string `json:"id"`
}

// CreateEmailHandler handles POST /api/v1/emails. The body is stored as-is;
// validation happens when the record is processed and its outcome is
// written to sent.state. publisher may be nil when the database notifies
// on insert.
func CreateEmailHandler(store EmailStore, publisher Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req request.EmailRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEmailBodyBytes))
		if err := dec.Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		id, err := store.Create(r.Context(), req)
		if err != nil {
			log.Error().Err(err).Msg("create email request failed")
			respondError(w, http.StatusInternalServerError, "failed to create email request")
			return
		}

		if publisher != nil {
			if entryID, err := publisher.Publish(r.Context(), id); err != nil {
				log.Error().Err(err).Str("record_id", id).Msg("publish created event failed")
			} else {
				log.Debug().Str("record_id", id).Str("entry_id", entryID).Msg("created event published")
			}
		}

		respondJSON(w, http.StatusCreated, createEmailResponse{ID: id})
	}
}

// GetEmailHandler handles GET /api/v1/emails/{id}.
func GetEmailHandler(store EmailStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, err := store.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				respondError(w, http.StatusNotFound, "email request not found")
				return
			}
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Str("record_id", id).Msg("get email request failed")
			respondError(w, http.StatusInternalServerError, "failed to load email request")
			return
		}

		respondJSON(w, http.StatusOK, rec)
	}
}
