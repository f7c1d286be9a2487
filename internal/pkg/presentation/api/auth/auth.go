package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel"
)

type claimsContextKey struct{ name string }

var claimsCtxKey = &claimsContextKey{"claims"}

var tracer = otel.Tracer("iot-vitals-monitor/authz")

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrForbidden    = errors.New("access denied")
)

type Claims struct {
	Subject string
	Role    string
}

type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, string, error)
	SubjectFromToken(ctx context.Context, token string) (string, error)
}

type validator struct {
	ja *jwtauth.JWTAuth
}

// NewTokenValidator verifies HS256 signed tokens carrying the subject in sub and an
// optional role claim. Without a secret every token is rejected.
func NewTokenValidator(secret string) TokenValidator {
	if secret == "" {
		return &validator{}
	}
	return &validator{ja: jwtauth.New("HS256", []byte(secret), nil)}
}

func (v *validator) ValidateToken(_ context.Context, tokenString string) (string, string, error) {
	if v.ja == nil {
		return "", "", fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}

	token, err := v.ja.Decode(tokenString)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if err = jwt.Validate(token); err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	subject := token.Subject()
	if subject == "" {
		return "", "", fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	role := ""
	if r, ok := token.Get("role"); ok {
		role, _ = r.(string)
	}

	return subject, role, nil
}

func (v *validator) SubjectFromToken(ctx context.Context, token string) (string, error) {
	subject, _, err := v.ValidateToken(ctx, token)
	return subject, err
}

type Authenticator interface {
	RequireAccess() func(http.Handler) http.Handler
}

type impl struct {
	validator TokenValidator
	query     rego.PreparedEvalQuery
}

func NewAuthenticator(ctx context.Context, validator TokenValidator, policies io.Reader) (Authenticator, error) {
	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read authz policies: %s", err.Error())
	}

	query, err := rego.New(
		rego.Query("x = data.vitals.authz.allow"),
		rego.Module("vitals.rego", string(module)),
	).PrepareForEval(ctx)

	if err != nil {
		return nil, err
	}

	return &impl{validator: validator, query: query}, nil
}

// RequireAccess authenticates the bearer token and asks the policy whether the
// caller may access the requested subject. The subject defaults to the caller
// unless the route carries a subjectID parameter.
func (a *impl) RequireAccess() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error

			ctx, span := tracer.Start(r.Context(), "check-auth")
			defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

			logger := logging.GetFromContext(ctx)

			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				err = errors.New("authorization header missing")
				logger.Info().Msg(err.Error())
				writeError(w, http.StatusUnauthorized, "missing_token")
				return
			}

			subject, role, err := a.validator.ValidateToken(ctx, strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				logger.Info().Err(err).Msg("token rejected")
				writeError(w, http.StatusUnauthorized, "invalid_token")
				return
			}

			target := chi.URLParam(r, "subjectID")
			if target == "" {
				target = subject
			}

			input := map[string]any{
				"subject": subject,
				"role":    role,
				"target":  target,
				"path":    r.URL.Path,
				"method":  r.Method,
			}

			results, err := a.query.Eval(ctx, rego.EvalInput(input))
			if err != nil {
				logger.Error().Err(err).Msg("opa eval failed")
				writeError(w, http.StatusInternalServerError, "internal_error")
				return
			}

			if len(results) == 0 {
				err = errors.New("opa query could not be satisfied")
				logger.Error().Err(err).Msg("auth failed")
				writeError(w, http.StatusInternalServerError, "internal_error")
				return
			}

			allowed, ok := results[0].Bindings["x"].(bool)
			if !ok || !allowed {
				err = ErrForbidden
				logger.Warn().Str("subject_id", subject).Str("target", target).Str("path", r.URL.Path).Msg("authorization failed")
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			r = r.WithContext(WithClaims(r.Context(), Claims{Subject: subject, Role: role}))

			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"status": "error", "reason": reason})
}

func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

func GetClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsCtxKey).(Claims)
	return claims, ok
}
