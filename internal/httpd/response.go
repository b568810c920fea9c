package httpd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mega-forge/mega-core/internal/mega"
)

const (
	ErrorMessageKey = "X-Mega-Error-Message"
	jsonMIME        = "application/json"
)

// ErrorBody is the {code, message} JSON error body.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ResponseWriter shadows http.ResponseWriter to track status/size for
// access logging, grounded on httpserver/response.go's ResponseWriter.
type ResponseWriter struct {
	http.ResponseWriter
	written    int64
	statusCode int
	remoteAddr string
}

func NewResponseWriter(w http.ResponseWriter, r *http.Request) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, statusCode: http.StatusOK, remoteAddr: remoteAddress(r)}
}

func (w *ResponseWriter) Write(data []byte) (int, error) {
	n, err := w.ResponseWriter.Write(data)
	w.written += int64(n)
	return n, err
}

func (w *ResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *ResponseWriter) StatusCode() int    { return w.statusCode }
func (w *ResponseWriter) Written() int64     { return w.written }
func (w *ResponseWriter) RemoteAddr() string { return w.remoteAddr }

func remoteAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if addr := strings.TrimSpace(strings.Split(xff, ",")[0]); addr != "" {
			return addr
		}
	}
	if addr := strings.TrimSpace(r.Header.Get("X-Real-Ip")); addr != "" {
		return addr
	}
	addr, _, _ := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	return addr
}

func renderJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", jsonMIME)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Errorf("httpd: encode response: %v", err)
	}
}

func renderFailure(w http.ResponseWriter, r *http.Request, status int, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	renderJSON(w, status, ErrorBody{Code: status, Message: msg})
	r.Header.Set(ErrorMessageKey, msg)
}

// renderError maps spec §7's error taxonomy onto HTTP status codes.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var unauthorized *mega.Unauthorized
	var quota *mega.QuotaExceeded
	var unknown *mega.UnknownObject
	var conflict *mega.RefConflict
	var malformed *mega.MalformedObject
	var checksum *mega.ChecksumMismatch
	var timeout *mega.Timeout
	var transient *mega.TransientStorage

	switch {
	case errors.As(err, &unauthorized):
		renderFailure(w, r, http.StatusForbidden, "%s", err.Error())
	case errors.As(err, &quota):
		renderFailure(w, r, http.StatusRequestEntityTooLarge, "%s", err.Error())
	case errors.As(err, &unknown):
		renderFailure(w, r, http.StatusNotFound, "%s", err.Error())
	case errors.As(err, &conflict):
		renderFailure(w, r, http.StatusConflict, "%s", err.Error())
	case errors.As(err, &malformed), errors.As(err, &checksum):
		renderFailure(w, r, http.StatusBadRequest, "%s", err.Error())
	case errors.As(err, &timeout):
		renderFailure(w, r, http.StatusGatewayTimeout, "%s", err.Error())
	case errors.As(err, &transient):
		renderFailure(w, r, http.StatusServiceUnavailable, "%s", err.Error())
	default:
		renderFailure(w, r, http.StatusInternalServerError, "internal server error")
		r.Header.Set(ErrorMessageKey, err.Error())
	}
}

func logResponse(hw *ResponseWriter, r *http.Request, spent time.Duration) {
	message := r.Header.Get(ErrorMessageKey)
	if message != "" {
		logrus.Errorf("[%s] %s %s status: %d written: %d spent: %v message: %s", hw.RemoteAddr(), r.Method, r.RequestURI, hw.StatusCode(), hw.Written(), spent, message)
		return
	}
	logrus.Infof("[%s] %s %s status: %d written: %d spent: %v", hw.RemoteAddr(), r.Method, r.RequestURI, hw.StatusCode(), hw.Written(), spent)
}
