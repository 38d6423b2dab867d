package http

import (
	"encoding/json"
	"net/http"

	"fleet-monitor/realtime/internal/auth"
	"fleet-monitor/realtime/internal/logging"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Role      auth.Role `json:"role"`
	Username  string    `json:"username"`
	ExpiresIn int       `json:"expires_in"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)

	user, err := s.deps.Users.Authenticate(req.Username, req.Password)
	if err != nil {
		logging.FromContext(r.Context()).Warn("login failed", "username", req.Username, "remote", r.RemoteAddr)
		fail(w, http.StatusUnauthorized, "Invalid username or password", nil)
		return
	}

	token, err := s.deps.JWT.GenerateToken(user)
	if err != nil {
		logging.FromContext(r.Context()).Error("token signing failed", "username", user.Username, "err", err)
		internalError(w)
		return
	}

	success(w, http.StatusOK, "Login successful", loginResponse{
		Token:     token,
		Role:      user.Role,
		Username:  user.Username,
		ExpiresIn: int(s.deps.JWT.TTL().Seconds()),
	})
}

// logout is stateless; clients drop the token.
func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	success(w, http.StatusOK, "Logged out successfully", nil)
}
