package api

import (
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/safar/petplace/internal/logging"
	"github.com/safar/petplace/internal/store"
	"github.com/safar/petplace/internal/upload"
)

const maxUploadMemory = 32 << 20

// formFiles opens every file sent under field in a multipart request. The
// returned func closes them.
func formFiles(r *http.Request, field string) ([]upload.File, func(), error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			return nil, func() {}, err
		}
	}

	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	var files []upload.File
	for _, fh := range r.MultipartForm.File[field] {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		opened = append(opened, f)
		files = append(files, upload.File{Name: fh.Filename, Size: fh.Size, Content: f})
	}
	return files, closeAll, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func (s *Server) handleCreatePet(w http.ResponseWriter, r *http.Request) {
	ownerID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var req struct {
		Name      string     `json:"name"`
		Species   string     `json:"species"`
		Breed     string     `json:"breed"`
		BirthDate *time.Time `json:"birth_date"`
		Microchip string     `json:"microchip"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	pet, err := store.CreatePet(r.Context(), s.db, store.CreatePetRequest{
		OwnerID:   ownerID,
		Name:      req.Name,
		Species:   req.Species,
		Breed:     req.Breed,
		BirthDate: req.BirthDate,
		Microchip: req.Microchip,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, pet)
}

func (s *Server) handleListPets(w http.ResponseWriter, r *http.Request) {
	ownerID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	pets, err := store.ListPets(r.Context(), s.db, ownerID)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, pets)
}

func (s *Server) handleGetPet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "petID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid pet ID")
		return
	}

	pet, err := store.GetPet(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, pet)
}

func (s *Server) handleEnsurePublicToken(w http.ResponseWriter, r *http.Request) {
	ownerID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	id, err := pathID(r, "petID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid pet ID")
		return
	}

	token, err := store.EnsurePublicToken(r.Context(), s.db, ownerID, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"public_token": token,
		"qr_code_url":  store.QRCodeURL(s.app.PublicBaseURL, token),
	})
}

func (s *Server) handlePetCard(w http.ResponseWriter, r *http.Request) {
	card, err := store.GetPetCard(r.Context(), s.db, s.app.PublicBaseURL, chi.URLParam(r, "token"))
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, card)
}

func (s *Server) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid pet ID")
		return
	}
	vetID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !isMultipart(r) {
		respondError(w, http.StatusBadRequest, "multipart/form-data expected")
		return
	}

	files, closeFiles, err := formFiles(r, "file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid upload")
		return
	}
	defer closeFiles()

	req := store.CreateExamRequest{
		PetID: petID,
		VetID: vetID,
		Kind:  r.FormValue("kind"),
		Notes: r.FormValue("notes"),
	}
	if v := r.FormValue("examined_at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "examined_at must be an RFC 3339 timestamp")
			return
		}
		req.ExaminedAt = t
	}
	if len(files) > 0 {
		req.File = &files[0]
	}

	exam, err := store.CreateExam(r.Context(), s.db, s.uploader, req)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, exam)
}

func (s *Server) handleListExams(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid pet ID")
		return
	}

	exams, err := store.ListExams(r.Context(), s.db, petID)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, exams)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	ownerID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var req struct {
		PetID       int64     `json:"pet_id"`
		Description string    `json:"description"`
		Latitude    float64   `json:"latitude"`
		Longitude   float64   `json:"longitude"`
		RadiusKm    float64   `json:"radius_km"`
		LastSeenAt  time.Time `json:"last_seen_at"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	alert, notified, err := store.CreateLostPetAlert(r.Context(), s.db, s.notifier, store.CreateAlertRequest{
		PetID:       req.PetID,
		OwnerID:     ownerID,
		Description: req.Description,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		RadiusKm:    req.RadiusKm,
		LastSeenAt:  req.LastSeenAt,
	})
	if err != nil {
		if alert == nil {
			fail(w, r, err)
			return
		}
		logging.FromContext(r.Context()).Error("alert created but neighbours were not notified",
			zap.Int64("alert_id", alert.ID),
			zap.Error(err))
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"alert":          alert,
		"users_notified": notified,
	})
}

func (s *Server) handleNearbyAlerts(w http.ResponseWriter, r *http.Request) {
	lat, errLat := queryFloat(r, "lat")
	lng, errLng := queryFloat(r, "lng")
	radius, errRadius := queryFloat(r, "radius_km")
	if errLat != nil || errLng != nil || errRadius != nil || radius <= 0 {
		respondError(w, http.StatusBadRequest, "lat, lng and a positive radius_km are required")
		return
	}

	alerts, err := store.NearbyAlerts(r.Context(), s.db, lat, lng, radius, queryInt(r, "limit", 50))
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleReportFound(w http.ResponseWriter, r *http.Request) {
	alertID, err := pathID(r, "alertID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid alert ID")
		return
	}
	reporterID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var req struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Notes     string  `json:"notes"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := store.ReportFoundPet(r.Context(), s.db, s.notifier, store.FoundReportRequest{
		AlertID:    alertID,
		ReporterID: reporterID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Notes:      req.Notes,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, report)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := pathID(r, "alertID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid alert ID")
		return
	}
	ownerID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	alert, err := store.ResolveLostPetAlert(r.Context(), s.db, alertID, ownerID)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, alert)
}
