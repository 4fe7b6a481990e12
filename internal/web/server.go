// Package web serves the OAuth redirect endpoint that links a chat to an hh
// account, plus a health check.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/hhbot/internal/headhunter"
	"github.com/example/hhbot/internal/settings"
)

//go:embed templates/*.html
var fs embed.FS

var pages = template.Must(template.ParseFS(fs, "templates/*.html"))

type StateDecoder interface {
	Decode(state string) (int64, error)
}

type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (headhunter.Token, error)
}

type TokenSealer interface {
	Seal(plaintext string) (string, error)
}

type SettingsUpdater interface {
	Update(ctx context.Context, chatID int64, fn func(*settings.Settings)) (settings.Settings, error)
}

type Server struct {
	States   StateDecoder
	OAuth    CodeExchanger
	Tokens   TokenSealer
	Settings SettingsUpdater
	// Notify tells the chat that authorization succeeded. Optional.
	Notify   func(ctx context.Context, chatID int64) error
	Logger   *zap.Logger
}

type pageData struct {
	OK      bool
	Title   string
	Message string
}

func (s *Server) Routes() http.Handler {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/oauth/callback", s.handleCallback)
	return r
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	log := s.Logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))

	if e := q.Get("error"); e != "" {
		log.Info("authorization declined", zap.String("error", e))
		s.render(w, http.StatusBadRequest, pageData{Title: "Авторизация отменена", Message: "Вернитесь в Telegram и попробуйте ещё раз."})
		return
	}

	chatID, err := s.States.Decode(q.Get("state"))
	if err != nil {
		log.Warn("bad oauth state", zap.Error(err))
		s.render(w, http.StatusBadRequest, pageData{Title: "Ссылка недействительна", Message: "Запросите новую ссылку для авторизации в боте."})
		return
	}
	log = log.With(zap.Int64("chat_id", chatID))

	code := q.Get("code")
	if code == "" {
		s.render(w, http.StatusBadRequest, pageData{Title: "Нет кода авторизации", Message: "Запросите новую ссылку для авторизации в боте."})
		return
	}

	tok, err := s.OAuth.ExchangeCode(r.Context(), code)
	if err != nil {
		log.Error("code exchange failed", zap.Error(err))
		s.render(w, http.StatusBadGateway, pageData{Title: "Не удалось авторизоваться", Message: "hh.ru не подтвердил авторизацию. Попробуйте позже."})
		return
	}

	sealed, err := s.Tokens.Seal(tok.AccessToken)
	if err != nil {
		log.Error("token seal failed", zap.Error(err))
		s.render(w, http.StatusInternalServerError, pageData{Title: "Ошибка сервера", Message: "Попробуйте позже."})
		return
	}
	if _, err := s.Settings.Update(r.Context(), chatID, func(st *settings.Settings) { st.AuthToken = sealed }); err != nil {
		log.Error("token save failed", zap.Error(err))
		s.render(w, http.StatusInternalServerError, pageData{Title: "Ошибка сервера", Message: "Попробуйте позже."})
		return
	}
	log.Info("chat authorized")

	if s.Notify != nil {
		if err := s.Notify(r.Context(), chatID); err != nil {
			log.Warn("authorization notice not sent", zap.Error(err))
		}
	}
	s.render(w, http.StatusOK, pageData{OK: true, Title: "✅ Вы успешно авторизовались!", Message: "Можно вернуться в Telegram."})
}

func (s *Server) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, "result.html", data); err != nil {
		s.Logger.Error("render failed", zap.Error(err))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start serves h on addr until ctx is done, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
