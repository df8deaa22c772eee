package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/fielddesk/chatcore/pkg/models"
)

var (
	ErrAuthDisabled = errors.New("auth disabled")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidKey   = errors.New("invalid api key")
	ErrModelDenied  = errors.New("model access denied")
)

// APIKeyConfig declares a static API key and the identity it resolves to.
type APIKeyConfig struct {
	Key    string
	UserID string
	Email  string
	Name   string
}

// Config configures the auth role's reference implementation.
type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
	APIKeys     []APIKeyConfig
	// AllowedModels maps a user ID to the models it may invoke. An
	// absent entry means the user may use any model; an entry present
	// but empty means the user may use none.
	AllowedModels map[string][]string
	ID            string
	Priority      int
}

// Service is the auth role's reference plugin: it authenticates
// credentials into a models.User, issues and verifies JWTs for that
// user, and authorizes per-user model access.
type Service struct {
	jwt           *JWTService
	apiKeys       map[string]*models.User
	allowedModels map[string]map[string]bool
	id            string
	priority      int
}

// New constructs a Service from static configuration.
func New(cfg Config) *Service {
	s := &Service{apiKeys: buildAPIKeyMap(cfg.APIKeys), id: cfg.ID, priority: cfg.Priority}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		s.jwt = NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	}
	if cfg.AllowedModels != nil {
		s.allowedModels = make(map[string]map[string]bool, len(cfg.AllowedModels))
		for userID, modelNames := range cfg.AllowedModels {
			set := make(map[string]bool, len(modelNames))
			for _, m := range modelNames {
				set[m] = true
			}
			s.allowedModels[userID] = set
		}
	}
	if s.id == "" {
		s.id = "jwt"
	}
	return s
}

func (s *Service) ID() string    { return s.id }
func (s *Service) Priority() int { return s.priority }

// Enabled reports whether any authentication mechanism is configured.
func (s *Service) Enabled() bool {
	return s != nil && (s.jwt != nil || len(s.apiKeys) > 0)
}

// Authenticate resolves a bearer credential (a signed JWT or a static
// API key) to the user it identifies. JWTs are tried first since they
// carry their own expiry; a credential that doesn't parse as one
// falls back to the API key map.
func (s *Service) Authenticate(ctx context.Context, credential string) (*models.User, error) {
	if !s.Enabled() {
		return nil, ErrAuthDisabled
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrInvalidToken
	}
	if s.jwt != nil {
		if user, err := s.jwt.Validate(credential); err == nil {
			return user, nil
		}
	}
	return s.ValidateAPIKey(credential)
}

// IssueToken issues a signed JWT for user, stamping in the model
// allow-list currently configured for them so the token itself
// reflects the restriction at the moment it was issued.
func (s *Service) IssueToken(ctx context.Context, user *models.User) (string, error) {
	if s.jwt == nil {
		return "", ErrAuthDisabled
	}
	stamped := *user
	if allowed, hasEntry := s.allowedModels[user.ID]; hasEntry {
		stamped.AllowedModels = setKeys(allowed)
	}
	return s.jwt.Generate(&stamped)
}

// VerifyToken validates a JWT and returns the user embedded in it.
func (s *Service) VerifyToken(ctx context.Context, token string) (*models.User, error) {
	if s.jwt == nil {
		return nil, ErrAuthDisabled
	}
	return s.jwt.Validate(token)
}

// ValidateAPIKey validates an API key and returns the associated user.
// Uses constant-time comparison so a failed lookup can't be timed
// against the configured key set.
func (s *Service) ValidateAPIKey(key string) (*models.User, error) {
	if len(s.apiKeys) == 0 {
		return nil, ErrAuthDisabled
	}
	inputKey := strings.TrimSpace(key)
	var matchedUser *models.User
	for storedKey, user := range s.apiKeys {
		if subtle.ConstantTimeCompare([]byte(inputKey), []byte(storedKey)) == 1 {
			matchedUser = user
		}
	}
	if matchedUser == nil {
		return nil, ErrInvalidKey
	}
	return matchedUser, nil
}

// AuthorizeModelAccess reports whether user may invoke model. The
// Service's own allow-list config is authoritative when it has an
// entry for this user; otherwise a model allow-list stamped onto the
// user's JWT at issuance (AuthorizeModelAccess's only other source of
// truth, useful when validating a token issued by a different Service
// instance than the one doing the check) is consulted. A user with no
// entry from either source may use any model; an empty entry denies
// all of them.
func (s *Service) AuthorizeModelAccess(ctx context.Context, user *models.User, model string) error {
	if user == nil {
		return ErrInvalidToken
	}
	if allowed, hasEntry := s.allowedModels[user.ID]; hasEntry {
		if !allowed[model] {
			return ErrModelDenied
		}
		return nil
	}
	if user.AllowedModels != nil {
		if !contains(user.AllowedModels, model) {
			return ErrModelDenied
		}
	}
	return nil
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

// setKeys returns set's keys as a sorted slice, never nil, so an
// explicitly empty allow-list round-trips through a JWT as an empty
// (not absent) claim.
func setKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func buildAPIKeyMap(keys []APIKeyConfig) map[string]*models.User {
	out := map[string]*models.User{}
	for _, entry := range keys {
		key := strings.TrimSpace(entry.Key)
		if key == "" {
			continue
		}
		userID := strings.TrimSpace(entry.UserID)
		if userID == "" {
			sum := sha256.Sum256([]byte(key))
			userID = "api_" + hex.EncodeToString(sum[:8])
		}
		out[key] = &models.User{
			ID:    userID,
			Email: strings.TrimSpace(entry.Email),
			Name:  strings.TrimSpace(entry.Name),
		}
	}
	return out
}
