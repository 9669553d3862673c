package http

import (
	"context"
	"net/http"

	"dailyledger/internal/auth"
	"dailyledger/internal/log"
)

type userKey struct{}

// requireUser authenticates the request with HTTP Basic credentials against
// the configured users. Without a directory every request is refused.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.users == nil {
			UnauthorizedError().Write(w)
			return
		}
		username, password, ok := r.BasicAuth()
		if !ok {
			UnauthorizedError().Write(w)
			return
		}
		u, err := s.users.Authenticate(username, password)
		if err != nil {
			s.logger.WarnContext(r.Context(), "Authentication failed",
				log.NewFields().
					WithClientIP(s.securityDetector.ExtractClientIP(r)).
					WithErrorType(log.ErrorTypeAuth).
					WithError(err).
					ToSlice()...)
			UnauthorizedError().Write(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	})
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (auth.User, bool) {
	u, ok := ctx.Value(userKey{}).(auth.User)
	return u, ok
}

type entryView struct {
	RowRef string   `json:"row_ref"`
	Cells  []string `json:"cells"`
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	u, ok := UserFromContext(r.Context())
	if !ok {
		UnauthorizedError().Write(w)
		return
	}

	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}
	e, err := ParseEntry(p, s.ledger.Today(), s.dates, s.amounts)
	if err != nil {
		FromError(err, http.StatusUnprocessableEntity).Write(w)
		return
	}

	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	res, err := s.ledger.Append(r.Context(), name, e)
	if err != nil {
		FromError(err, http.StatusUnprocessableEntity).Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions?raw=1").
		Data(entryView{RowRef: res.RowRef, Cells: res.Cells}).
		Write(w)
}
