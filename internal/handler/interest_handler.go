package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/whisper/matchmaker/internal/embedding"
	"github.com/whisper/matchmaker/internal/matching"
	"github.com/whisper/matchmaker/internal/pkg/errs"
	"github.com/whisper/matchmaker/internal/pkg/req"
	"github.com/whisper/matchmaker/internal/pkg/resp"
	"github.com/whisper/matchmaker/internal/protocol"
)

type SaveInterestsInput struct {
	Interests json.RawMessage `json:"interests"`
}

type BestMatchInput struct {
	UserID         string   `json:"userId"`
	AvailableUsers []string `json:"availableUsers"`
}

type SimilarMatchInput struct {
	UserID    string          `json:"userId"`
	Interests json.RawMessage `json:"interests"`
}

type UserStatusInput struct {
	Online *bool `json:"online"`
}

// HandleGetInterests returns the stored interests of a user, empty when unset.
func HandleGetInterests(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}

		interests, err := deps.Interests.GetInterests(r.Context(), userID)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, map[string]any{"interests": interests})
	}
}

// HandleSaveInterests replaces a user's interests and marks them online.
func HandleSaveInterests(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}

		var input SaveInterestsInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		interests, ok := decodeInterests(input.Interests)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.CodeInvalidParams))
			return
		}

		if err := deps.Interests.SaveInterests(r.Context(), userID, interests); err != nil {
			respondServiceError(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, map[string]any{
			"success":   true,
			"interests": matching.NormalizeInterests(interests),
		})
	}
}

// HandleBestMatch picks the online user among availableUsers with the most
// interests in common.
func HandleBestMatch(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input BestMatchInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if !validUserID(input.UserID) {
			resp.RespondError(w, r, errs.NewError(errs.CodeInvalidParams))
			return
		}

		match, err := deps.Interests.FindBestMatch(r.Context(), input.UserID, input.AvailableUsers)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, match)
	}
}

// HandleSimilarMatch pairs the caller with the most similar online user by
// interest embedding.
func HandleSimilarMatch(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SimilarMatchInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		interests, ok := decodeInterests(input.Interests)
		if !validUserID(input.UserID) || !ok {
			resp.RespondError(w, r, errs.NewError(errs.CodeInvalidParams))
			return
		}

		match, err := deps.Interests.FindSimilar(r.Context(), input.UserID, interests)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, match)
	}
}

// HandleUserStatus sets a user's online flag.
func HandleUserStatus(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDParam(w, r)
		if !ok {
			return
		}

		var input UserStatusInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if input.Online == nil {
			resp.RespondError(w, r, errs.NewError(errs.CodeInvalidParams))
			return
		}

		if err := deps.Interests.SetOnline(r.Context(), userID, *input.Online); err != nil {
			respondServiceError(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, map[string]any{"userId": userID, "online": *input.Online})
	}
}

func validUserID(id string) bool {
	return id != "" && len(id) <= protocol.MaxUserIDLen
}

func userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := chi.URLParam(r, "userId")
	if !validUserID(userID) {
		resp.RespondError(w, r, errs.NewError(errs.CodeInvalidParams))
		return "", false
	}
	return userID, true
}

// decodeInterests accepts only a JSON array of strings within the protocol
// limits.
func decodeInterests(raw json.RawMessage) ([]string, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var interests []string
	if err := json.Unmarshal(raw, &interests); err != nil || interests == nil {
		return nil, false
	}
	if len(interests) > protocol.MaxInterests {
		return nil, false
	}
	for _, in := range interests {
		if len(in) > protocol.MaxInterestLen {
			return nil, false
		}
	}
	return interests, true
}

// respondServiceError maps package sentinels to error codes. Anything
// unrecognized is logged and reported as INTERNAL.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var code string
	switch {
	case errors.Is(err, matching.ErrNoUsers):
		code = errs.CodeNoUsers
	case errors.Is(err, matching.ErrNoInterests):
		code = errs.CodeNoInterests
	case errors.Is(err, matching.ErrNoMatch):
		code = errs.CodeNoMatch
	case errors.Is(err, embedding.ErrUnavailable):
		code = errs.CodeEmbeddingUnavailable
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("interest service failed")
		code = errs.CodeInternal
	}
	resp.RespondError(w, r, errs.NewError(code))
}
