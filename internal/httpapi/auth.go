package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"stationpos/backend/internal/domain"
)

const (
	tokenIssuer     = "stationpos"
	defaultTokenTTL = 8 * time.Hour
	accountRefresh  = 3 * time.Second
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInactiveAccount    = errors.New("account is inactive")
	errInvalidToken       = errors.New("invalid or expired token")
)

// UserStore persists operator accounts. Passwords are stored as bcrypt
// hashes; rows still holding plain text are rehashed on load.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager issues and verifies the bearer tokens carried by terminals.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	store    UserStore

	mu       sync.RWMutex
	accounts map[string]account
}

type account struct {
	hash   string
	role   string
	active bool
}

type stationClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	m := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		store:    userStore,
		accounts: make(map[string]account),
	}
	ctx, cancel := context.WithTimeout(context.Background(), accountRefresh)
	defer cancel()
	m.refresh(ctx)
	return m
}

// Login verifies the operator and returns a signed token. The account list
// is refreshed first so users created on another instance can sign in.
func (m *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	refreshCtx, cancel := context.WithTimeout(ctx, accountRefresh)
	m.refresh(refreshCtx)
	cancel()

	username := normalizeUsername(req.Username)
	m.mu.RLock()
	acct, ok := m.accounts[username]
	m.mu.RUnlock()
	if !ok || !passwordMatches(acct.hash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !acct.active {
		return domain.LoginResponse{}, errInactiveAccount
	}

	expiresAt := time.Now().UTC().Add(m.tokenTTL)
	token, err := m.sign(username, acct.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        acct.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ParseToken returns the actor a token was issued to. Only HS256 tokens
// from this issuer with a known role are accepted.
func (m *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	var claims stationClaims
	_, err := jwtlib.ParseWithClaims(raw, &claims, func(*jwtlib.Token) (any, error) {
		return m.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Actor{}, errInvalidToken
	}
	if claims.Subject == "" || !knownRole(claims.Role) {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

func (m *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	now := time.Now().UTC()
	claims := stationClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
}

// CreateUser registers a cashier or manager account.
func (m *AuthManager) CreateUser(ctx context.Context, username string, password string, role string) error {
	username = normalizeUsername(username)
	switch {
	case len(username) < 3 || strings.ContainsAny(username, " \t\r\n"):
		return errors.New("username must be at least 3 characters without spaces")
	case len(password) < 6:
		return errors.New("password must be at least 6 characters")
	case !knownRole(role):
		return fmt.Errorf("unknown role %q", role)
	}

	m.mu.RLock()
	_, taken := m.accounts[username]
	m.mu.RUnlock()
	if taken {
		return errors.New("username already exists")
	}

	hash, err := hashPassword(password)
	if err != nil {
		return errors.New("failed to hash password")
	}
	if m.store != nil {
		user := domain.UserAccount{
			Username:  username,
			Password:  hash,
			Role:      role,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		if err := m.store.CreateUser(ctx, user); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.accounts[username] = account{hash: hash, role: role, active: true}
	m.mu.Unlock()
	return nil
}

// refresh reloads accounts from the store. A failed load keeps the
// previous cache.
func (m *AuthManager) refresh(ctx context.Context) {
	if m.store == nil {
		return
	}
	users, err := m.store.ListUsers(ctx)
	if err != nil {
		return
	}

	loaded := make(map[string]account, len(users))
	for _, user := range users {
		username := normalizeUsername(user.Username)
		if username == "" {
			continue
		}
		hash := user.Password
		if !isPasswordHash(hash) {
			upgraded, err := hashPassword(hash)
			if err != nil {
				continue
			}
			hash = upgraded
			_ = m.store.UpdateUserPassword(ctx, user.Username, hash)
		}
		loaded[username] = account{hash: hash, role: user.Role, active: user.Active}
	}

	m.mu.Lock()
	for username, acct := range loaded {
		m.accounts[username] = acct
	}
	m.mu.Unlock()
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func knownRole(role string) bool {
	return role == domain.RoleCashier || role == domain.RoleManager
}

func passwordMatches(hash string, input string) bool {
	if strings.TrimSpace(input) == "" || !isPasswordHash(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func isPasswordHash(value string) bool {
	_, err := bcrypt.Cost([]byte(value))
	return err == nil
}
