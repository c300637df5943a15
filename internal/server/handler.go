// Package server exposes the analysis dispatcher over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/KaramelBytes/analyst/internal/metrics"
	"github.com/KaramelBytes/analyst/internal/task"
)

const serviceName = "Data Analyst Agent"

// Runner answers a classified task.
type Runner interface {
	Run(ctx context.Context, t task.Descriptor) (any, error)
}

// Options tunes the handler.
type Options struct {
	// MaxBodyBytes caps the request body; larger bodies get 413.
	MaxBodyBytes int64
	// RequestTimeout bounds one analysis; 0 disables the deadline.
	RequestTimeout time.Duration
	// Compress enables gzip for clients that accept it.
	Compress bool
}

// Handler serves the REST API.
type Handler struct {
	run     Runner
	metrics *metrics.Service
	opts    Options
	log     *slog.Logger
	mux     *http.ServeMux
}

// New builds the API handler with its middleware chain.
func New(run Runner, m *metrics.Service, opts Options, logger *slog.Logger) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewService()
	}
	h := &Handler{run: run, metrics: m, opts: opts, log: logger, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/", h.analyze)
	h.mux.HandleFunc("/health", h.health)
	h.mux.HandleFunc("/metrics", h.metricsText)
	h.mux.HandleFunc("/", h.root)

	var inner http.Handler = h.mux
	if opts.Compress {
		inner = compress(inner)
	}
	inner = cors(inner)
	inner = recoverer(logger, inner)
	inner = accessLog(logger, m, inner)
	return requestID(inner)
}

// --- route handlers ---------------------------------------------------------

// root returns GET /: liveness banner.
func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		jsonErr(w, http.StatusNotFound, "Not Found")
		return
	}
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"message": serviceName + " is running", "status": "healthy"})
}

// health returns GET /health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "healthy", "service": serviceName})
}

// metricsText returns GET /metrics: Prometheus text exposition.
func (h *Handler) metricsText(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	h.metrics.Registry.Handler().ServeHTTP(w, r)
}

// analyze returns POST /api/: the answer to the task in the body.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	text, status, err := readTask(w, r, h.opts.MaxBodyBytes)
	if err != nil {
		jsonErr(w, status, err.Error())
		return
	}

	ctx := r.Context()
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}
	desc := task.Classify(text)
	logger := h.log.With("request_id", RequestIDFrom(r.Context()), "kind", desc.Kind.String())
	logger.Info("server: task received", "questions", len(desc.Questions), "plot_ceiling", desc.PlotCeiling)

	out, err := h.run.Run(ctx, desc)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			logger.Warn("server: task deadline exceeded", "err", err)
			jsonErr(w, http.StatusGatewayTimeout, "Analysis timed out: "+err.Error())
		case errors.Is(err, context.Canceled):
			// client went away; nothing useful to send
			logger.Info("server: task cancelled", "err", err)
		default:
			logger.Error("server: task failed", "err", err)
			jsonErr(w, http.StatusInternalServerError, "Error processing request: "+err.Error())
		}
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// readTask extracts the task text from a multipart upload or the raw body.
func readTask(w http.ResponseWriter, r *http.Request, max int64) (string, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, max)
	var (
		raw []byte
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		raw, err = readMultipart(r, max)
	} else {
		raw, err = io.ReadAll(r.Body)
	}
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return "", http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", mbe.Limit)
		}
		return "", http.StatusBadRequest, fmt.Errorf("read request: %w", err)
	}
	text := string(raw)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	text = strings.TrimPrefix(text, "\ufeff")
	if strings.TrimSpace(text) == "" {
		return "", http.StatusBadRequest, errors.New("empty task")
	}
	return text, 0, nil
}

// readMultipart returns the first uploaded file, preferring the field
// "file", or a plain "task"/"question" value when nothing was uploaded.
func readMultipart(r *http.Request, max int64) ([]byte, error) {
	if err := r.ParseMultipartForm(max); err != nil {
		return nil, err
	}
	form := r.MultipartForm
	defer form.RemoveAll()

	fields := make([]string, 0, len(form.File))
	for name := range form.File {
		fields = append(fields, name)
	}
	sort.Slice(fields, func(i, j int) bool {
		if fields[i] == "file" || fields[j] == "file" {
			return fields[i] == "file"
		}
		return fields[i] < fields[j]
	})
	for _, name := range fields {
		for _, fh := range form.File[name] {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("open upload %q: %w", fh.Filename, err)
			}
			b, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				return nil, fmt.Errorf("read upload %q: %w", fh.Filename, err)
			}
			return b, nil
		}
	}
	for _, key := range []string{"task", "question", "file"} {
		if v := form.Value[key]; len(v) > 0 {
			return []byte(v[0]), nil
		}
	}
	return nil, nil
}

// --- helpers ----------------------------------------------------------------

// allow writes 405 and returns false unless r uses method. HEAD rides on GET.
func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	w.Header().Set("Allow", method)
	jsonErr(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	return false
}

func jsonResp(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// jsonErr writes the {"detail": ...} error body clients of this API expect.
func jsonErr(w http.ResponseWriter, status int, msg string) {
	jsonResp(w, status, map[string]string{"detail": msg})
}
