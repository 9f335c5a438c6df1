package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"

	"github.com/linesmerrill/commute-permit-api/databases"
	"github.com/linesmerrill/commute-permit-api/models"
)

// CronStrategyKey identifies the static bearer token used by the external scheduler
const CronStrategyKey = auth.StrategyKey("commute.cron.static")

// TokenTTL is the lifetime of an admin session token
const TokenTTL = 12 * time.Hour

// Claims are carried by admin session tokens
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth authenticates admin sessions and the scheduler
type Auth struct {
	Employees  databases.EmployeeDatabase
	Secret     []byte
	CronSecret string
	Now        func() time.Time

	admin auth.Authenticator
	cron  auth.Authenticator
}

type userContextKey struct{}

// NewAuth sets up the go-guardian authenticators. Validated tokens are cached
// for a few minutes so a request does not always hit the employee table.
func NewAuth(employees databases.EmployeeDatabase, secret, cronSecret string) *Auth {
	a := &Auth{Employees: employees, Secret: []byte(secret), CronSecret: cronSecret, Now: time.Now}
	cache := store.NewFIFO(context.Background(), 5*time.Minute)
	tokenStrategy := bearer.New(a.ValidateToken, cache)

	a.admin = auth.New()
	a.admin.EnableStrategy(bearer.CachedStrategyKey, tokenStrategy)

	a.cron = auth.New()
	a.cron.EnableStrategy(CronStrategyKey, cronStrategy{secret: cronSecret})
	a.cron.EnableStrategy(bearer.CachedStrategyKey, tokenStrategy)
	return a
}

// IssueToken signs a session token for an admin
func (a *Auth) IssueToken(e models.Employee) (string, time.Time, error) {
	if !e.IsAdmin() {
		return "", time.Time{}, errors.New("employee is not an admin")
	}
	now := a.Now()
	expires := now.Add(TokenTTL)
	claims := Claims{
		Role: e.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   e.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateToken parses a session token and checks the admin still exists
func (a *Auth) ValidateToken(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.Now))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Role != models.RoleAdmin {
		return nil, errors.New("token does not belong to an admin")
	}

	employee, err := a.Employees.FindOne(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to get admin %s: %w", claims.Subject, err)
	}
	if employee.DeletedFlag || !employee.IsAdmin() {
		return nil, errors.New("admin access revoked")
	}
	return auth.NewDefaultUser(employee.Email, employee.ID, []string{models.RoleAdmin}, nil), nil
}

type cronStrategy struct {
	secret string
}

// Authenticate accepts "Authorization: Bearer <CRON_SECRET>"
func (c cronStrategy) Authenticate(ctx context.Context, r *http.Request) (auth.Info, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if c.secret == "" || token == "" {
		return nil, errors.New("cron secret not provided")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(c.secret)) != 1 {
		return nil, errors.New("invalid cron secret")
	}
	return auth.NewDefaultUser("cron", "cron", nil, nil), nil
}

// AdminMiddleware rejects requests without a valid admin session token
func (a *Auth) AdminMiddleware(next http.Handler) http.Handler {
	return a.middleware(a.admin, next)
}

// CronMiddleware accepts either the scheduler secret or an admin token
func (a *Auth) CronMiddleware(next http.Handler) http.Handler {
	return a.middleware(a.cron, next)
}

func (a *Auth) middleware(authenticator auth.Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := authenticator.Authenticate(r)
		if err != nil {
			zap.S().Warnw("unauthorized", "url", r.URL.Path, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}
		zap.S().Debugw("authenticated", "user", user.UserName())
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, user)))
	})
}

// UserFromContext returns the authenticated caller, if any
func UserFromContext(ctx context.Context) (auth.Info, bool) {
	u, ok := ctx.Value(userContextKey{}).(auth.Info)
	return u, ok
}
