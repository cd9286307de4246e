package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"qrelay/internal/constants"
	"qrelay/internal/qr"
	"qrelay/internal/relay"
	"qrelay/internal/security"
	"qrelay/internal/session"
	"qrelay/internal/types"
	"qrelay/internal/utils"
)

const (
	minQRSize = 128
	maxQRSize = 1024
)

var errMissingImage = errors.New(constants.MsgMissingImage)

func (s *Server) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	clientIP := security.GetClientIP(r)

	allowed, err := s.Limiter.Allow(r.Context(), clientIP)
	if err != nil {
		log.Warn().Err(err).Msg("Rate limiter unavailable, allowing request")
		allowed = true
	}
	if !allowed {
		s.AuditLogger.LogRateLimit(clientIP)
		s.Metrics.RateLimited.Inc()
		writeErrorKind(w, http.StatusTooManyRequests, types.ErrKindRateLimited, constants.MsgRateLimitExceeded)
		return
	}

	snap, err := s.Sessions.Create()
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		writeErrorKind(w, http.StatusInternalServerError, types.ErrKindInternal, constants.MsgInternalError)
		return
	}

	joinURL := utils.PublicURL(r, s.Config.Server.PublicURL, utils.JoinPath(snap.ID))
	resp := types.CreateSessionResponse{
		ID:         snap.ID,
		URL:        joinURL,
		QRURL:      utils.PublicURL(r, s.Config.Server.PublicURL, constants.EndpointSessions+"/"+snap.ID+"/qr.png"),
		DeadlineMs: s.Sessions.Policy().Remaining(snap.ExpiresAt, s.Sessions.Now()).Milliseconds(),
		ExpiresAt:  snap.ExpiresAt,
	}
	if uri, err := qr.DataURI(joinURL, qr.DefaultSize); err != nil {
		log.Warn().Err(err).Str("session_id", snap.ID).Msg("Failed to render QR code")
	} else {
		resp.QR = uri
	}

	s.Metrics.SessionsCreatedTotal.Inc()
	s.AuditLogger.LogSessionCreated(clientIP, snap.ID)

	log.Info().Str("session_id", snap.ID).Str("url", joinURL).Msg("🔔 New session created")
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) HandleQR(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	if _, err := s.Sessions.Lookup(id); err != nil {
		s.recordLookup(r, err)
		writeError(w, err)
		return
	}
	s.recordLookup(r, nil)

	size := qr.DefaultSize
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			size = min(max(n, minQRSize), maxQRSize)
		}
	}

	png, err := qr.PNG(utils.PublicURL(r, s.Config.Server.PublicURL, utils.JoinPath(id)), size)
	if err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("Failed to render QR code")
		writeErrorKind(w, http.StatusInternalServerError, types.ErrKindInternal, constants.MsgInternalError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *Server) HandleConnect(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	err := s.Sessions.Connect(id)
	s.recordLookup(r, err)
	if err != nil {
		if errors.Is(err, session.ErrConflict) {
			s.AuditLogger.LogSenderRejected(security.GetClientIP(r), id)
		}
		writeError(w, err)
		return
	}

	s.Metrics.SendersConnected.Inc()
	writeJSON(w, http.StatusOK, types.ConnectResponse{OK: true, Status: string(session.StatusConnected)})
}

func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	role, err := session.ParseRole(r.URL.Query().Get(constants.QueryRole))
	if err != nil {
		s.AuditLogger.LogInvalidRequest(security.GetClientIP(r), id, r.URL.Path, constants.MsgInvalidRole)
		writeErrorKind(w, http.StatusBadRequest, types.ErrKindBadRequest, constants.MsgInvalidRole)
		return
	}

	res, err := s.Sessions.Poll(id, role)
	s.recordLookup(r, err)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, types.StatusResponse{
		Status:           string(res.Status),
		PartnerConnected: res.PartnerConnected,
		RemainingMs:      res.Remaining.Milliseconds(),
		NewImageIDs:      res.NewImageIDs,
	})
}

// HandleUpload accepts a multipart form with an "image" file field, or a raw
// image body with the filename in the "name" query parameter.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	clientIP := security.GetClientIP(r)
	if !s.UploadLimiter.TryConnect(clientIP) {
		log.Warn().Str("ip", clientIP).Int("active", s.UploadLimiter.Active(clientIP)).Msg("Upload refused, too many in flight")
		s.AuditLogger.LogUploadLimit(clientIP, id)
		s.Metrics.RateLimited.Inc()
		writeErrorKind(w, http.StatusTooManyRequests, types.ErrKindRateLimited, constants.MsgTooManyUploads)
		return
	}
	defer s.UploadLimiter.Disconnect(clientIP)

	img, err := s.storeUpload(r, id)
	if err != nil {
		s.Metrics.UploadErrorsTotal.WithLabelValues(errorKind(err)).Inc()
		writeError(w, err)
		return
	}

	s.Metrics.ImagesUploadedTotal.Inc()
	s.Metrics.ImageBytesTotal.WithLabelValues("in").Add(float64(img.Size))

	writeJSON(w, http.StatusCreated, types.UploadResponse{
		ImageID: img.ID,
		Name:    img.Name,
		Size:    img.Size,
	})
}

func (s *Server) storeUpload(r *http.Request, id string) (*session.Image, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return s.Relay.Store(r.Context(), id, r.URL.Query().Get("name"), r.Header.Get("Content-Type"), r.Body)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", relay.ErrBadUpload, err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errMissingImage
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, session.ErrPayloadTooLarge
			}
			return nil, fmt.Errorf("%w: %v", relay.ErrBadUpload, err)
		}
		if part.FormName() != constants.UploadFormField {
			part.Close()
			continue
		}

		img, err := s.Relay.Store(r.Context(), id, part.FileName(), part.Header.Get("Content-Type"), part)
		part.Close()
		return img, err
	}
}

func (s *Server) HandleFetch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	imageID := r.PathValue("imageId")
	if !security.ValidateImageID(imageID) {
		writeErrorKind(w, http.StatusNotFound, types.ErrKindNotFound, constants.MsgImageNotFound)
		return
	}

	d, err := s.Relay.Deliver(r.Context(), id, imageID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeErrorKind(w, http.StatusNotFound, types.ErrKindNotFound, constants.MsgImageNotFound)
			return
		}
		writeError(w, err)
		return
	}

	s.Metrics.ImagesDeliveredTotal.Inc()
	s.Metrics.ImageBytesTotal.WithLabelValues("out").Add(float64(len(d.Data)))

	w.Header().Set("Content-Type", d.Image.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": d.Image.Name}))
	w.WriteHeader(http.StatusOK)
	w.Write(d.Data)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:   "ok",
		Sessions: s.Sessions.Store().Len(),
	})
}

// sessionID reads the {id} path value. Blocked probers and malformed ids are
// answered here.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	clientIP := security.GetClientIP(r)
	if !s.Probes.Check(clientIP) {
		s.Metrics.RateLimited.Inc()
		writeErrorKind(w, http.StatusTooManyRequests, types.ErrKindRateLimited, constants.MsgRateLimitExceeded)
		return "", false
	}

	id := r.PathValue("id")
	if !security.ValidateUUID(id) {
		s.AuditLogger.LogInvalidRequest(clientIP, "", r.URL.Path, constants.MsgInvalidSessionID)
		s.recordLookup(r, session.ErrNotFound)
		writeErrorKind(w, http.StatusNotFound, types.ErrKindNotFound, constants.MsgSessionNotFound)
		return "", false
	}
	return strings.ToLower(id), true
}

// recordLookup feeds session lookups into the probe guard.
func (s *Server) recordLookup(r *http.Request, err error) {
	clientIP := security.GetClientIP(r)
	switch {
	case err == nil:
		s.Probes.RecordHit(clientIP)
	case errors.Is(err, session.ErrNotFound):
		if misses := s.Probes.RecordMiss(clientIP); misses == constants.MaxProbeMisses {
			s.AuditLogger.LogProbe(clientIP, misses)
		}
	}
}

func errorKind(err error) string {
	_, kind, _ := classify(err)
	return kind
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, types.ErrKindNotFound, constants.MsgSessionNotFound
	case errors.Is(err, session.ErrConflict):
		return http.StatusConflict, types.ErrKindConflict, constants.MsgSenderConnected
	case errors.Is(err, session.ErrReceiverGone):
		return http.StatusConflict, types.ErrKindInvalidState, constants.MsgReceiverGone
	case errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict, types.ErrKindInvalidState, constants.MsgNotConnected
	case errors.Is(err, session.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, types.ErrKindPayloadTooLarge, constants.MsgPayloadTooLarge
	case errors.Is(err, session.ErrStorage):
		return http.StatusInsufficientStorage, types.ErrKindStorage, constants.MsgStorageFailure
	case errors.Is(err, errMissingImage):
		return http.StatusBadRequest, types.ErrKindBadRequest, constants.MsgMissingImage
	case errors.Is(err, relay.ErrBadUpload):
		return http.StatusBadRequest, types.ErrKindBadRequest, constants.MsgBadUpload
	default:
		return http.StatusInternalServerError, types.ErrKindInternal, constants.MsgInternalError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, kind, msg := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Unhandled request error")
	}
	writeErrorKind(w, status, kind, msg)
}

func writeErrorKind(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: kind, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
