package auth

import (
	"encoding/json"
	"net/http"
	"time"
)

// Operator is a console user allowed to trigger scans.
type Operator struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the successful login response
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginHandler authenticates operators against bcrypt hashes.
func LoginHandler(operators []Operator) http.HandlerFunc {
	byName := make(map[string]Operator, len(operators))
	for _, op := range operators {
		byName[op.Username] = op
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}

		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Username == "" || req.Password == "" {
			http.Error(w, `{"error":"username and password are required"}`, http.StatusBadRequest)
			return
		}

		op, ok := byName[req.Username]
		if !ok || !CheckPasswordHash(req.Password, op.PasswordHash) {
			http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
			return
		}

		role := op.Role
		if role == "" {
			role = "operator"
		}
		token, err := GenerateToken(op.Username, role)
		if err != nil {
			http.Error(w, `{"error":"failed to generate token"}`, http.StatusInternalServerError)
			return
		}

		json.NewEncoder(w).Encode(LoginResponse{
			Token:     token,
			Username:  op.Username,
			Role:      role,
			ExpiresAt: time.Now().Add(tokenTTL),
		})
	}
}
