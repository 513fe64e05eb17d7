package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/cochaviz/apkforge/internal/archive"
	"github.com/cochaviz/apkforge/internal/build"
	"github.com/cochaviz/apkforge/internal/logging"
)

const (
	maxUploadBytes  = 64 << 20
	eventBuffer     = 64
	writeTimeout    = 10 * time.Second
	eventsKeepAlive = 30 * time.Second
)

// Server exposes a single Builder over HTTP and a websocket event stream.
type Server struct {
	builder  Builder
	logger   *slog.Logger
	secret   []byte
	upgrader websocket.Upgrader
}

// NewServer wraps builder. A non-empty secret enables bearer token checks on
// every route that changes state.
func NewServer(builder Builder, logger *slog.Logger, secret []byte) *Server {
	return &Server{
		builder: builder,
		logger:  logging.Ensure(logger).With("component", "daemon"),
		secret:  secret,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the router serving every daemon route.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc(RouteHealth, s.health).Methods(http.MethodGet)
	r.HandleFunc(RouteBuild, s.status).Methods(http.MethodGet)
	r.HandleFunc(RouteBuild, s.requireToken(s.start)).Methods(http.MethodPost)
	r.HandleFunc(RouteCancel, s.requireToken(s.cancel)).Methods(http.MethodPost)
	r.HandleFunc(RouteClear, s.requireToken(s.clear)).Methods(http.MethodPost)
	r.HandleFunc(RouteArtifact, s.artifact).Methods(http.MethodGet)
	r.HandleFunc(RouteEvents, s.events).Methods(http.MethodGet)

	r.Use(s.logRequests)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.builder.Snapshot())
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	config, err := parseBuildForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.builder.StartBuild(config); err != nil {
		if errors.Is(err, build.ErrBuildInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("build submitted", "app", config.AppName, "archive", archiveName(config.Archive))
	writeJSON(w, http.StatusAccepted, s.builder.Snapshot())
}

func (s *Server) cancel(w http.ResponseWriter, _ *http.Request) {
	s.builder.CancelBuild()
	writeJSON(w, http.StatusOK, s.builder.Snapshot())
}

func (s *Server) clear(w http.ResponseWriter, _ *http.Request) {
	s.builder.ClearLogs()
	writeJSON(w, http.StatusOK, s.builder.Snapshot())
}

func (s *Server) artifact(w http.ResponseWriter, _ *http.Request) {
	rc, handle, err := s.builder.OpenArtifact()
	if errors.Is(err, build.ErrNoArtifact) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", handle.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", handle.Name))
	if handle.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(handle.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("artifact download interrupted", "artifact", handle.Name, "error", err)
	}
}

// events streams every controller event to a websocket client, starting with
// the current snapshot. The stream ends when either side closes.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.builder.Subscribe(eventBuffer)
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read failed", "error", err)
				}
				return
			}
		}
	}()

	send := func(event build.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(event); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return false
		}
		return true
	}

	if !send(build.Event{Type: build.EventStatus, Snapshot: s.builder.Snapshot()}) {
		return
	}

	keepAlive := time.NewTicker(eventsKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "controller closed"),
					time.Now().Add(time.Second))
				return
			}
			if !send(event) {
				return
			}
		case <-keepAlive.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func parseBuildForm(r *http.Request) (build.BuildConfig, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return build.BuildConfig{}, fmt.Errorf("parse form: %w", err)
	}

	config := build.BuildConfig{
		AppName:   strings.TrimSpace(r.FormValue(FieldAppName)),
		PackageID: strings.TrimSpace(r.FormValue(FieldPackageID)),
		AdMobID:   strings.TrimSpace(r.FormValue(FieldAdMobID)),
	}
	if raw := r.FormValue(FieldEnableAdMob); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return build.BuildConfig{}, fmt.Errorf("%s: %w", FieldEnableAdMob, err)
		}
		config.EnableAdMob = enabled
	}

	var err error
	if config.Archive, err = formFile(r, FieldArchive); err != nil {
		return build.BuildConfig{}, err
	}
	if config.Icon, err = formFile(r, FieldIcon); err != nil {
		return build.BuildConfig{}, err
	}
	return config, nil
}

// formFile returns nil when the field is absent; a missing archive is reported
// by the controller, not here.
func formFile(r *http.Request, field string) (*archive.File, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	return &archive.File{
		Name:        header.Filename,
		ContentType: declaredContentType(header, data),
		Data:        data,
	}, nil
}

func declaredContentType(header *multipart.FileHeader, data []byte) string {
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		return archive.DetectContentType(header.Filename, data)
	}
	return contentType
}

func archiveName(file *archive.File) string {
	if file == nil {
		return ""
	}
	return file.Name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
