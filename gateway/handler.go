package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handler is the portal-side API over the files service.
type Handler struct {
	client *Client
	log    *zap.Logger
}

func NewHandler(client *Client, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{client: client, log: logger}
}

func (h *Handler) Handler() http.Handler {
	r := mux.NewRouter()
	h.Routes(r)
	return r
}

func (h *Handler) Routes(r *mux.Router) {
	api := r.PathPrefix("/api/files").Subrouter()
	api.HandleFunc("/list", h.list).Methods(http.MethodGet)
	api.HandleFunc("/download/{filename}", h.download).Methods(http.MethodGet)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	raw, err := h.client.ListFilesRaw(r.Context())
	if err != nil {
		h.fail(w, "list files", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	resp, err := h.client.Download(r.Context(), mux.Vars(r)["filename"])
	if err != nil {
		h.fail(w, "download file", err)
		return
	}
	defer resp.Body.Close()

	for _, k := range []string{"Content-Type", "Content-Disposition", "Content-Length", "Last-Modified"} {
		if v := resp.Header.Get(k); len(v) > 0 {
			w.Header().Set(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.log.Warn("streaming download", zap.Error(err))
	}
}

// fail forwards client errors (4xx) from the files service and reports
// everything else as a bad gateway.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	code := http.StatusBadGateway
	msg := fmt.Sprintf("%s: files service unavailable", op)

	var se *StatusError
	if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
		code, msg = se.Code, se.Message
	} else {
		h.log.Error(op+" failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
