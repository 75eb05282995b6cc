package cups

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/basicstation-testserver/internal/config"
	"github.com/brocaar/basicstation-testserver/internal/token"
)

// ErrNoPackage is returned when the station did not report its package
// version.
var ErrNoPackage = errors.New("nil/unknown firmware")

type claimsKey struct{}

// Server implements the update-info endpoint.
type Server struct {
	store       *Store
	tokenSecret string

	router chi.Router
	ln     net.Listener
	server *http.Server
}

// NewServer creates a new Server and starts listening on the configured
// bind address.
func NewServer(conf config.Config) (*Server, error) {
	upConf := conf.Update

	s := Server{
		store:       NewStore(upConf.HomeDir, upConf.TCDir),
		tokenSecret: conf.Backend.BasicStation.Auth.TokenSecret,
	}
	s.router = s.newRouter()

	var tlsConfig *tls.Config
	if upConf.CACert != "" {
		rawCACert, err := os.ReadFile(upConf.CACert)
		if err != nil {
			return nil, errors.Wrap(err, "read ca cert error")
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(rawCACert) {
			return nil, errors.New("append ca cert error")
		}

		tlsConfig = &tls.Config{
			ClientCAs:  caCertPool,
			ClientAuth: tls.RequireAndVerifyClientCert,
		}
	}

	var err error
	s.ln, err = net.Listen("tcp", upConf.Bind)
	if err != nil {
		return nil, errors.Wrap(err, "create listener error")
	}

	s.server = &http.Server{
		Handler:           s.router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{
			"bind":     s.ln.Addr(),
			"home_dir": upConf.HomeDir,
			"tc_dir":   upConf.TCDir,
			"tls_cert": upConf.TLSCert,
			"tls_key":  upConf.TLSKey,
			"ca_cert":  upConf.CACert,
		}).Info("cups: starting update-info listener")

		var err error
		if upConf.TLSCert != "" || upConf.TLSKey != "" {
			err = s.server.ServeTLS(s.ln, upConf.TLSCert, upConf.TLSKey)
		} else {
			err = s.server.Serve(s.ln)
		}

		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("cups: server error")
		}
	}()

	return &s, nil
}

// NewHandler returns the update-info handler without starting a listener.
func NewHandler(store *Store, tokenSecret string) http.Handler {
	s := Server{
		store:       store,
		tokenSecret: tokenSecret,
	}
	return s.newRouter()
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Close stops the server.
func (s *Server) Close() error {
	return s.server.Close()
}

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		if s.tokenSecret != "" {
			r.Use(s.authMiddleware)
		}
		r.Post("/update-info", s.handleUpdateInfo)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"request_id":  middleware.GetReqID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration":    time.Since(start),
		}).Debug("cups: request handled")
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := token.Authenticate(s.tokenSecret, r)
		if err != nil {
			log.WithError(err).WithField("remote_addr", r.RemoteAddr).Error("cups: authentication error")
			updateInfoCounter("unauthorized").Inc()
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func (s *Server) handleUpdateInfo(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.WithError(err).WithField("remote_addr", r.RemoteAddr).Error("cups: decode update-info request error")
		updateInfoCounter("bad_request").Inc()
		http.Error(w, "invalid update-info request", http.StatusBadRequest)
		return
	}

	logFields := log.Fields{
		"router":  req.Router,
		"package": req.Package,
		"model":   req.Model,
		"station": req.Station,
	}

	if claims, ok := r.Context().Value(claimsKey{}).(*token.Claims); ok {
		if err := claims.Check(req.Router); err != nil {
			log.WithError(err).WithFields(logFields).Error("cups: token verification failed")
			updateInfoCounter("unauthorized").Inc()
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	if req.Package == "" {
		log.WithError(ErrNoPackage).WithFields(logFields).Warning("cups: update-info request rejected")
		updateInfoCounter("no_package").Inc()
		http.Error(w, "Nil/unknown firmware", http.StatusNotFound)
		return
	}

	var rec RouterRecord
	err := resolveTimer(nil, func() error {
		var err error
		rec, err = s.store.Resolve(req.Router)
		return err
	})
	if err != nil {
		if errors.Cause(err) == ErrUnknownRouter {
			log.WithFields(logFields).Warning("cups: unknown router")
			updateInfoCounter("unknown_router").Inc()
			http.Error(w, "Nil/unknown firmware", http.StatusNotFound)
			return
		}

		log.WithError(err).WithFields(logFields).Error("cups: resolve router error")
		updateInfoCounter("error").Inc()
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	fields := UpdatedFields(req, rec)
	for _, f := range fields {
		updateFieldCounter(f).Inc()
	}

	body := Negotiate(req, rec)

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(body); err != nil {
		log.WithError(err).WithFields(logFields).Error("cups: write update-info response error")
		return
	}
	updateInfoCounter("ok").Inc()

	logFields["updates"] = fields
	logFields["target_version"] = rec.Version
	log.WithFields(logFields).Info("cups: update-info request handled")
}
