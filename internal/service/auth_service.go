package service

import (
	"net/http"
	"strings"

	"baria-go/internal/config"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/hash"
	"baria-go/pkg/log"
	"baria-go/pkg/token"
)

// RoleAdmin is the only role issued; patients never log in.
const RoleAdmin = "ADMIN"

// TokenPair is the login / refresh response.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthService authenticates the admins listed in the configuration.
type AuthService interface {
	Login(username, password string) (*TokenPair, error)
	Refresh(refreshToken string) (*TokenPair, error)
	// Verify checks an access token and returns its claims.
	Verify(accessToken string) (*token.CustomClaims, error)
}

type authService struct {
	admins     map[string]string
	jwtManager *token.JWTManager
}

func NewAuthService(admins []config.AdminConfig, jwtManager *token.JWTManager) AuthService {
	m := make(map[string]string, len(admins))
	for _, a := range admins {
		if a.Username == "" || a.PasswordHash == "" {
			log.Warnf("[AuthService] admin entry %q has no password hash, skipped", a.Username)
			continue
		}
		m[a.Username] = a.PasswordHash
	}
	return &authService{admins: m, jwtManager: jwtManager}
}

func unauthorized(msg string) error {
	return apperrors.New(apperrors.ErrUnauthorized, http.StatusUnauthorized, msg)
}

func (s *authService) Login(username, password string) (*TokenPair, error) {
	username = strings.TrimSpace(username)
	hashed, ok := s.admins[username]
	if !ok || !hash.CheckPassword(password, hashed) {
		log.Warnf("[AuthService] failed login for %q", username)
		return nil, unauthorized("invalid username or password")
	}
	return s.issue(username)
}

func (s *authService) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := s.jwtManager.VerifyToken(refreshToken, token.TypeRefresh)
	if err != nil {
		return nil, unauthorized("invalid refresh token")
	}
	if _, ok := s.admins[claims.Username]; !ok {
		return nil, unauthorized("unknown user")
	}
	return s.issue(claims.Username)
}

func (s *authService) Verify(accessToken string) (*token.CustomClaims, error) {
	claims, err := s.jwtManager.VerifyToken(accessToken, token.TypeAccess)
	if err != nil {
		return nil, unauthorized("invalid or expired token")
	}
	if _, ok := s.admins[claims.Username]; !ok {
		return nil, unauthorized("unknown user")
	}
	return claims, nil
}

func (s *authService) issue(username string) (*TokenPair, error) {
	access, err := s.jwtManager.GenerateToken(username, RoleAdmin)
	if err != nil {
		return nil, err
	}
	refresh, err := s.jwtManager.GenerateRefreshToken(username, RoleAdmin)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
