package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"loadboard/auth"
	"loadboard/document"
	"loadboard/load"
	"loadboard/recommend"
)

// Handlers bundles the services behind the REST surface.
type Handlers struct {
	auth        *auth.Service
	loads       *load.Service
	docs        *document.Service
	recommender *recommend.Service
	realtime    http.Handler
	uploadsDir  string
	logger      *slog.Logger
}

func NewHandlers(authSvc *auth.Service, loads *load.Service, docs *document.Service, recommender *recommend.Service, realtime http.Handler, uploadsDir string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		auth:        authSvc,
		loads:       loads,
		docs:        docs,
		recommender: recommender,
		realtime:    realtime,
		uploadsDir:  uploadsDir,
		logger:      logger,
	}
}

// Router wires every endpoint onto a mux router.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/auth/register", h.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)

	r.HandleFunc("/loads", requireAuth(h.auth, h.handleCreateLoad)).Methods(http.MethodPost)
	r.HandleFunc("/loads", requireAuth(h.auth, h.handleBoard)).Methods(http.MethodGet)
	r.HandleFunc("/loads/posted", requireAuth(h.auth, h.handlePosted)).Methods(http.MethodGet)
	r.HandleFunc("/loads/accepted", requireAuth(h.auth, h.handleAccepted)).Methods(http.MethodGet)
	r.HandleFunc("/loads/{id}/accept", requireAuth(h.auth, h.handleAccept)).Methods(http.MethodPut)
	r.HandleFunc("/loads/{id}/deliver", requireAuth(h.auth, h.handleDeliver)).Methods(http.MethodPut)

	r.HandleFunc("/documents/generate-bol", requireAuth(h.auth, h.handleGenerateBOL)).Methods(http.MethodPost)
	r.HandleFunc("/documents/generate-invoice/{loadId}", requireAuth(h.auth, h.handleGenerateInvoiceByPath)).Methods(http.MethodGet)
	r.HandleFunc("/documents/generate-invoice", requireAuth(h.auth, h.handleGenerateInvoice)).Methods(http.MethodPost)
	r.HandleFunc("/documents/upload-pod/{loadId}", requireAuth(h.auth, h.handleUploadPOD)).Methods(http.MethodPost)

	r.HandleFunc("/chatbot/voice-command", requireAuth(h.auth, h.handleVoiceCommand)).Methods(http.MethodPost)

	if h.realtime != nil {
		r.Handle("/ws", h.realtime)
	}

	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.uploadsDir))))

	return r
}

func (h *Handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid JSON body")
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        user.ID,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      user.Role,
	})
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid JSON body")
		return
	}

	result, err := h.auth.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user": map[string]any{
			"id":        result.User.ID,
			"email":     result.User.Email,
			"full_name": result.User.FullName,
			"role":      result.User.Role,
		},
	})
}

type createLoadRequest struct {
	Title         string  `json:"title"`
	Origin        string  `json:"origin"`
	Destination   string  `json:"destination"`
	EquipmentType string  `json:"equipmentType"`
	Rate          float64 `json:"rate"`
	PickupDate    string  `json:"pickupDate"`
	DeliveryDate  string  `json:"deliveryDate"`
}

func (h *Handlers) handleCreateLoad(w http.ResponseWriter, r *http.Request) {
	var req createLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid JSON body")
		return
	}

	params := load.CreateParams{
		Title:         req.Title,
		Origin:        req.Origin,
		Destination:   req.Destination,
		EquipmentType: req.EquipmentType,
		Rate:          req.Rate,
	}
	if req.PickupDate != "" {
		t, err := time.Parse("2006-01-02", req.PickupDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "pickupDate must be YYYY-MM-DD")
			return
		}
		params.PickupDate = &t
	}
	if req.DeliveryDate != "" {
		t, err := time.Parse("2006-01-02", req.DeliveryDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "deliveryDate must be YYYY-MM-DD")
			return
		}
		params.DeliveryDate = &t
	}

	created, err := h.loads.Create(r.Context(), actorFrom(r), params)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLoadResponse(created))
}

func (h *Handlers) handleBoard(w http.ResponseWriter, r *http.Request) {
	loads, err := h.loads.Board(r.Context(), actorFrom(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoadResponses(loads))
}

func (h *Handlers) handlePosted(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := load.PostedFilters{
		Status:    load.Status(q.Get("status")),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}

	loads, err := h.loads.Posted(r.Context(), actorFrom(r), filters)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoadResponses(loads))
}

func (h *Handlers) handleAccepted(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := h.loads.Accepted(r.Context(), actorFrom(r), page, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loads":       toLoadResponses(result.Loads),
		"totalPages":  result.TotalPages,
		"currentPage": result.CurrentPage,
	})
}

func (h *Handlers) handleAccept(w http.ResponseWriter, r *http.Request) {
	accepted, err := h.loads.Accept(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoadResponse(accepted))
}

func (h *Handlers) handleDeliver(w http.ResponseWriter, r *http.Request) {
	delivered, err := h.loads.Deliver(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoadResponse(delivered))
}

type generateRequest struct {
	LoadID string `json:"loadId"`
}

func (h *Handlers) handleGenerateBOL(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LoadID == "" {
		writeError(w, http.StatusBadRequest, "validation", "loadId is required")
		return
	}

	path, err := h.docs.GenerateBOL(r.Context(), req.LoadID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"filePath": path})
}

func (h *Handlers) handleGenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LoadID == "" {
		writeError(w, http.StatusBadRequest, "validation", "loadId is required")
		return
	}
	h.generateInvoice(w, r, req.LoadID)
}

func (h *Handlers) handleGenerateInvoiceByPath(w http.ResponseWriter, r *http.Request) {
	h.generateInvoice(w, r, mux.Vars(r)["loadId"])
}

func (h *Handlers) generateInvoice(w http.ResponseWriter, r *http.Request, loadID string) {
	path, err := h.docs.GenerateInvoice(r.Context(), loadID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"filePath": path})
}

const maxPODSize = 20 << 20

func (h *Handlers) handleUploadPOD(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxPODSize); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "expected multipart form upload")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "no file provided")
		return
	}
	defer file.Close()

	path, err := h.docs.UploadPOD(r.Context(), mux.Vars(r)["loadId"], file)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"filePath": path})
}

type voiceCommandRequest struct {
	Command string `json:"command"`
}

func (h *Handlers) handleVoiceCommand(w http.ResponseWriter, r *http.Request) {
	var req voiceCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid JSON body")
		return
	}

	result, err := h.recommender.HandleCommand(r.Context(), actorFrom(r).ID, req.Command)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := map[string]any{"message": result.Message}
	if result.Loads != nil {
		resp["loads"] = toLoadResponses(result.Loads)
	}
	writeJSON(w, http.StatusOK, resp)
}
