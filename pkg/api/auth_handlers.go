package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/reportgate/reportgate/pkg/httputil"
	"github.com/reportgate/reportgate/pkg/identity"
	"github.com/reportgate/reportgate/pkg/units"
)

// authHandlers serves login, token refresh and the current-user endpoint.
type authHandlers struct {
	users  identity.Service
	units  units.Service
	tokens *identity.TokenIssuer
	logger *logrus.Logger
}

func newAuthHandlers(users identity.Service, unitService units.Service, tokens *identity.TokenIssuer, logger *logrus.Logger) *authHandlers {
	return &authHandlers{users: users, units: unitService, tokens: tokens, logger: logger}
}

func (h *authHandlers) registerPublicRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.Login).Methods("POST")
	router.HandleFunc("/auth/refresh", h.Refresh).Methods("POST")
}

func (h *authHandlers) registerRoutes(router *mux.Router) {
	router.HandleFunc("/auth/me", h.Me).Methods("GET")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *userProfile `json:"user"`
}

// userProfile is a user plus their unit memberships, the shape clients need
// to render navigation without a second round trip.
type userProfile struct {
	*identity.User
	Units []*units.Membership `json:"units"`
}

// Login authenticates a username/password pair and returns a token pair.
func (h *authHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "username and password are required")
		return
	}

	user, err := h.users.Authenticate(req.Username, req.Password)
	if err != nil {
		httputil.WriteUnauthorized(w, "invalid credentials")
		return
	}

	pair, err := h.issuePair(user)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}
	httputil.WriteSuccess(w, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a new pair.
func (h *authHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	userID, err := h.tokens.Validate(req.RefreshToken, identity.TokenTypeRefresh)
	if err != nil {
		httputil.WriteUnauthorized(w, "invalid or expired refresh token")
		return
	}

	user, err := h.users.GetUser(userID)
	if err != nil {
		httputil.WriteUnauthorized(w, "unknown user")
		return
	}

	pair, err := h.issuePair(user)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}
	httputil.WriteSuccess(w, pair)
}

// Me returns the authenticated user.
func (h *authHandlers) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	user, err := h.users.GetUser(principal.UserID)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	profile, err := h.profile(user)
	if err != nil {
		httputil.WriteDomainError(w, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, profile)
}

func (h *authHandlers) profile(user *identity.User) (*userProfile, error) {
	memberships, err := h.units.UnitsOfUser(user.ID)
	if err != nil {
		return nil, err
	}
	if memberships == nil {
		memberships = []*units.Membership{}
	}
	return &userProfile{User: user, Units: memberships}, nil
}

func (h *authHandlers) issuePair(user *identity.User) (*tokenPairResponse, error) {
	access, err := h.tokens.IssueAccess(user.ID)
	if err != nil {
		return nil, err
	}
	refresh, err := h.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, err
	}
	profile, err := h.profile(user)
	if err != nil {
		return nil, err
	}
	return &tokenPairResponse{AccessToken: access, RefreshToken: refresh, User: profile}, nil
}
