package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/harrisonrobin/hubsync/pkg/model"
	"github.com/harrisonrobin/hubsync/pkg/profile"
	"github.com/harrisonrobin/hubsync/pkg/roster"
)

type ctxKey struct{}

// claims is the JWT payload issued at login.
type claims struct {
	Role     model.Role `json:"role"`
	Name     string     `json:"name"`
	Position string     `json:"position,omitempty"`
	jwt.RegisteredClaims
}

func (c *claims) identity() roster.Identity {
	return roster.Identity{ID: c.Subject, Role: c.Role, Name: c.Name, Position: c.Position}
}

func identityFrom(ctx context.Context) roster.Identity {
	c, _ := ctx.Value(ctxKey{}).(*claims)
	if c == nil {
		return roster.Identity{}
	}
	return c.identity()
}

func (s *Server) signToken(id roster.Identity) (string, error) {
	now := s.now()
	c := &claims{
		Role:     id.Role,
		Name:     id.Name,
		Position: id.Position,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(s.opts.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	s.sessMu.Lock()
	s.sessions[c.ID] = c.ExpiresAt.Time
	s.sessMu.Unlock()
	s.syncSessions()
	return token, nil
}

func (s *Server) parseToken(raw string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(raw, c, func(*jwt.Token) (any, error) {
		return []byte(s.opts.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	s.sessMu.Lock()
	_, live := s.sessions[c.ID]
	s.sessMu.Unlock()
	if !live {
		return nil, errors.New("session ended")
	}
	return c, nil
}

// syncSessions drops expired sessions and tells the scheduler whether anyone
// is still signed in.
func (s *Server) syncSessions() {
	now := s.now()
	s.sessMu.Lock()
	for id, exp := range s.sessions {
		if !now.Before(exp) {
			delete(s.sessions, id)
		}
	}
	active := len(s.sessions) > 0
	changed := active != s.active
	s.active = active
	s.sessMu.Unlock()
	if changed {
		s.opts.Scheduler.SetSessionActive(active)
	}
}

// SweepSessions expires sessions on a timer until ctx is done, so the
// scheduler stops once the last token lapses even if no request arrives.
func (s *Server) SweepSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncSessions()
		}
	}
}

// loginRequest is the body accepted by POST /login.
type loginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// loginResponse is the body returned by a successful login.
type loginResponse struct {
	Token           string          `json:"token"`
	Identity        roster.Identity `json:"identity"`
	ProfileComplete bool            `json:"profile_complete"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.opts.Roster.Authenticate(req.ID, req.Password, s.opts.Engine.Snapshot())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.signToken(id)
	if err != nil {
		s.logger.Error("sign jwt", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	resp := loginResponse{Token: token, Identity: id}
	if s.opts.Profiles != nil {
		p, err := s.opts.Profiles.Get(r.Context(), id.ID)
		if err != nil && !errors.Is(err, profile.ErrNotFound) {
			s.logger.Warn("load profile", slog.String("id", id.ID), slog.Any("error", err))
		}
		resp.ProfileComplete = p.IsComplete()
	}
	s.logger.Info("login", slog.String("id", id.ID), slog.String("role", string(id.Role)))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	c, _ := r.Context().Value(ctxKey{}).(*claims)
	if c != nil {
		s.sessMu.Lock()
		delete(s.sessions, c.ID)
		s.sessMu.Unlock()
	}
	s.syncSessions()
	w.WriteHeader(http.StatusNoContent)
}

// authMiddleware enforces JWT authentication on wrapped handlers.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		s.syncSessions()
		c, err := s.parseToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
