package fichiers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const DefaultMaxUploadBytes = 32 << 20

// Server exposes a Store over HTTP.
type Server struct {
	store          *Store
	log            *zap.Logger
	maxUploadBytes int64
}

func NewServer(store *Store, logger *zap.Logger, maxUploadBytes int64) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{store: store, log: logger, maxUploadBytes: maxUploadBytes}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.Routes(r)
	return r
}

func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	files := r.PathPrefix("/files").Subrouter()
	files.HandleFunc("/upload", s.upload).Methods(http.MethodPost)
	files.HandleFunc("/convert", s.convert).Methods(http.MethodPost)
	files.HandleFunc("/search", s.search).Methods(http.MethodGet)
	files.HandleFunc("/listAll", s.listAll).Methods(http.MethodGet)
	files.HandleFunc("/metadata", s.metadata).Methods(http.MethodGet)
	files.HandleFunc("/download/{filename}", s.download).Methods(http.MethodGet)
	files.HandleFunc("/{filename}", s.delete).Methods(http.MethodDelete)
}

type message struct {
	Message  string `json:"message"`
	Download string `json:"download,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		s.fail(w, "upload", badRequest(err))
		return
	}
	defer f.Close()

	s.log.Info("uploading file", zap.String("file", hdr.Filename))
	e, err := s.store.Save(r.Context(), hdr.Filename, f)
	if err != nil {
		s.fail(w, "upload", err)
		return
	}
	s.log.Info("file uploaded", zap.String("file", e.Filename), zap.Int64("size", e.Size))
	writeJSON(w, http.StatusOK, message{Message: "file " + e.Filename + " uploaded"})
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		s.fail(w, "convert", badRequest(err))
		return
	}
	defer f.Close()

	format, err := ParseFormat(r.FormValue("format"))
	if err != nil {
		s.fail(w, "convert", err)
		return
	}

	name, err := s.store.Convert(r.Context(), hdr.Filename, f, format)
	if err != nil {
		s.fail(w, "convert", err)
		return
	}
	s.log.Info("file converted",
		zap.String("file", hdr.Filename),
		zap.String("format", string(format)),
		zap.String("output", name))
	writeJSON(w, http.StatusOK, message{
		Message:  "file converted to " + name,
		Download: "/files/download/" + name,
	})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("file")
	if !ValidName(name) {
		s.fail(w, "search", fmt.Errorf("%w: %q", ErrInvalidName, name))
		return
	}
	if !s.store.Exists(name) {
		s.log.Warn("file not found", zap.String("file", name))
		writeJSON(w, http.StatusNotFound, message{Message: "file " + name + " does not exist"})
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "file " + name + " found"})
}

func (s *Server) listAll(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.List()
	if err != nil {
		s.log.Error("listing files", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, []string{})
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) metadata(w http.ResponseWriter, r *http.Request) {
	md, err := s.store.Metadata(r.Context(), r.URL.Query().Get("file"))
	if err != nil {
		s.fail(w, "metadata", err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	f, fi, err := s.store.Open(name)
	if err != nil {
		s.fail(w, "download", err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if t := fileType(name); len(t) > 0 {
		w.Header().Set("Content-Type", t)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	http.ServeContent(w, r, name, fi.ModTime(), f)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	if err := s.store.Delete(r.Context(), name); err != nil {
		s.fail(w, "delete", err)
		return
	}
	s.log.Info("file deleted", zap.String("file", name))
	writeJSON(w, http.StatusOK, message{Message: "file " + name + " deleted"})
}

type badRequestError struct{ err error }

func (e badRequestError) Error() string { return e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return badRequestError{err}
}

// fail maps err to a status code and writes it as a JSON message.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	var (
		tooLarge *http.MaxBytesError
		bad      badRequestError
	)
	switch {
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, message{Message: "file too large"})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, message{Message: err.Error()})
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrUnsupportedFormat), errors.As(err, &bad):
		writeJSON(w, http.StatusBadRequest, message{Message: err.Error()})
	default:
		s.log.Error(op+" failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, message{Message: op + " failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
