// Package stub serves an in-memory double of the counseling REST API so the
// smoke checks can run offline and in tests.
package stub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mahaj/counseling-smoke/pkg/auth"
	"github.com/mahaj/counseling-smoke/pkg/model"
)

// APIPrefix matches the context path of the real service.
const APIPrefix = "/api"

type Server struct {
	store    *Store
	issuer   *auth.Issuer
	validate *validator.Validate
	logger   *zap.Logger
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewServer(store *Store, issuer *auth.Issuer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:    store,
		issuer:   issuer,
		validate: validator.New(),
		logger:   logger,
		hub:      NewHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"},
		MaxAge:         300,
	}))

	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/v1/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/auth/validate-token", s.handleValidateToken)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/messages", s.handleSendMessage)
			r.Get("/messages/unread-count", s.handleUnreadCount)
			r.Put("/messages/read-all", s.handleMarkAllRead)
			r.Get("/conversations", s.handleConversations)
		})
	})
	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		token, ok := auth.BearerToken(header)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		claims, err := s.issuer.ValidateToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		// Tokens outlive accounts; a deleted or deactivated user is refused.
		if user, ok := s.store.User(claims.UserID); !ok || !user.Active {
			writeError(w, http.StatusUnauthorized, "User not found or inactive")
			return
		}

		s.logger.Debug("authenticated user", zap.Int64("user_id", claims.UserID), zap.String("subject", claims.Subject))

		ctx := context.WithValue(r.Context(), auth.UserKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(r *http.Request) (*auth.Claims, bool) {
	claims, ok := r.Context().Value(auth.UserKey).(*auth.Claims)
	return claims, ok
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Health{
		Status:    "UP",
		Service:   "UNZA Counseling System",
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	user, err := s.store.Authenticate(req.Identifier, req.Password)
	if err != nil {
		s.logger.Info("login rejected", zap.String("identifier", req.Identifier))
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := s.issuer.GenerateToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		s.logger.Error("failed to generate token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	refresh, err := s.issuer.GenerateToken(user.ID, user.Email, "refresh")
	if err != nil {
		s.logger.Error("failed to generate refresh token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, model.LoginResponse{
		Token:        token,
		RefreshToken: refresh,
		ExpiresIn:    int(s.issuer.TTL().Seconds()),
		User:         user,
	})
}

func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, model.TokenValidation{Valid: false, Error: "Invalid token format"})
		return
	}
	_, err := s.issuer.ValidateToken(token)
	writeJSON(w, http.StatusOK, model.TokenValidation{Valid: err == nil})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req model.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	msg, err := s.store.Send(claims.UserID, req)
	if errors.Is(err, ErrUnknownRecipient) {
		writeError(w, http.StatusNotFound, "Recipient not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}

	s.logger.Info("message stored",
		zap.Int64("id", msg.ID),
		zap.Int64("sender_id", msg.SenderID),
		zap.Int64("recipient_id", msg.RecipientID))
	s.hub.Notify(Event{Type: EventUnread, UserID: msg.RecipientID, Count: s.store.UnreadCount(msg.RecipientID)})
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, model.UnreadCount{Count: s.store.UnreadCount(claims.UserID)})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	n := s.store.MarkAllRead(claims.UserID)
	s.logger.Debug("marked messages read", zap.Int64("user_id", claims.UserID), zap.Int("count", n))
	if n > 0 {
		s.hub.Notify(Event{Type: EventUnread, UserID: claims.UserID})
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, s.store.Conversations(claims.UserID))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}
