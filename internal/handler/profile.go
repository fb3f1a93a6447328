package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/sakif/friendship-plus/internal/apperror"
	"github.com/sakif/friendship-plus/internal/model"
	"github.com/sakif/friendship-plus/internal/service"
)

// DefaultMaxUpload is the profile picture size limit.
const DefaultMaxUpload int64 = 5 << 20

// allowedPictureTypes are the only sniffed types a profile picture may have.
var allowedPictureTypes = []string{"image/jpeg", "image/png"}

// ProfileService is the slice of service.ProfileService the HTTP layer uses.
type ProfileService interface {
	Upsert(ctx context.Context, actorID, targetID string, in service.ProfileInput, pic *model.Picture) (*model.Profile, error)
	Get(ctx context.Context, userID string) (*model.Profile, error)
}

// ProfileHandler serves profile reads and writes.
type ProfileHandler struct {
	profiles  ProfileService
	maxUpload int64
	logger    *slog.Logger
}

// NewProfileHandler creates a ProfileHandler. A non-positive maxUpload
// selects DefaultMaxUpload.
func NewProfileHandler(profiles ProfileService, maxUpload int64, logger *slog.Logger) *ProfileHandler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return &ProfileHandler{profiles: profiles, maxUpload: maxUpload, logger: logger}
}

type profileResponse struct {
	Success bool           `json:"success"`
	Profile *model.Profile `json:"profile"`
}

// profileRequest is the JSON form of a profile write. ProfilePic is a
// base64 data URI.
type profileRequest struct {
	service.ProfileInput
	ProfilePic *string `json:"profilePic"`
}

// HandleUpsert creates or merges into the caller's profile.
//
// HTTP: POST /profile/{id}
//
// Two encodings are accepted:
//   - application/json with profilePic as a data URI
//   - multipart/form-data with the same fields as form values and the
//     picture as file "profilePic"
//
// Pictures are sniffed; only JPEG and PNG up to maxUpload bytes pass.
func (h *ProfileHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		in  service.ProfileInput
		pic *model.Picture
	)
	if mediaType == "multipart/form-data" {
		in, pic, err = h.parseMultipart(w, r)
	} else {
		in, pic, err = h.parseJSON(w, r)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	profile, err := h.profiles.Upsert(r.Context(), actor, chi.URLParam(r, "id"), in, pic)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{Success: true, Profile: profile})
}

// HandleGet returns any user's profile.
//
// HTTP: GET /profile/{id}
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{Success: true, Profile: profile})
}

func (h *ProfileHandler) parseJSON(w http.ResponseWriter, r *http.Request) (service.ProfileInput, *model.Picture, error) {
	// base64 inflates the picture by 4/3; leave room for the other fields.
	limit := h.maxUpload/3*4 + maxJSONBody
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return req.ProfileInput, nil, apperror.TooLarge("profilePic", h.maxUpload)
		}
		if isFieldTypeError(err, "age") {
			return req.ProfileInput, nil, apperror.ValidationFailed("age", "Invalid age")
		}
		return req.ProfileInput, nil, apperror.ValidationFailed("", "Invalid JSON body")
	}

	if req.ProfilePic == nil || *req.ProfilePic == "" {
		return req.ProfileInput, nil, nil
	}

	decoded, err := model.ParsePicture(*req.ProfilePic)
	if err != nil {
		return req.ProfileInput, nil, apperror.ValidationFailed("profilePic", "profilePic must be a base64 data URI")
	}
	pic, err := h.checkPicture(decoded.Data)
	return req.ProfileInput, pic, err
}

func (h *ProfileHandler) parseMultipart(w http.ResponseWriter, r *http.Request) (service.ProfileInput, *model.Picture, error) {
	var in service.ProfileInput

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+maxJSONBody)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return in, nil, apperror.TooLarge("profilePic", h.maxUpload)
		}
		return in, nil, apperror.ValidationFailed("", "Invalid multipart form")
	}
	form := r.MultipartForm

	in.Bio = formValue(form, "bio")
	in.Location = formValue(form, "location")
	in.Courses = formValue(form, "courses")
	in.School = formValue(form, "school")

	if raw := formValue(form, "age"); raw != nil && strings.TrimSpace(*raw) != "" {
		age, err := strconv.Atoi(strings.TrimSpace(*raw))
		if err != nil {
			return in, nil, apperror.ValidationFailed("age", "Invalid age")
		}
		in.Age = &age
	}

	// Repeated "interests" keys arrive as a list; a single one may hold
	// comma-separated or JSON text.
	if vals, ok := form.Value["interests"]; ok {
		if len(vals) == 1 {
			in.Interests = vals[0]
		} else {
			in.Interests = vals
		}
	}

	file, _, err := r.FormFile("profilePic")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return in, nil, nil
		}
		return in, nil, apperror.ValidationFailed("profilePic", "Invalid profile picture upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		return in, nil, err
	}
	pic, err := h.checkPicture(data)
	return in, pic, err
}

// checkPicture enforces the size limit and sniffs the content type. The
// sniffed type is stored; whatever the client declared is ignored.
func (h *ProfileHandler) checkPicture(data []byte) (*model.Picture, error) {
	if int64(len(data)) > h.maxUpload {
		return nil, apperror.TooLarge("profilePic", h.maxUpload)
	}

	mtype := mimetype.Detect(data)
	for _, allowed := range allowedPictureTypes {
		if mtype.Is(allowed) {
			return &model.Picture{MIMEType: allowed, Data: data}, nil
		}
	}
	return nil, apperror.ValidationFailed("profilePic", "Only JPEG and PNG images are allowed")
}

// formValue returns a pointer to the first value of key, or nil when the
// form does not carry it at all.
func formValue(form *multipart.Form, key string) *string {
	vals, ok := form.Value[key]
	if !ok || len(vals) == 0 {
		return nil
	}
	v := vals[0]
	return &v
}
