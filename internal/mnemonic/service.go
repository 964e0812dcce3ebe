// Package mnemonic issues and validates single-use BIP39 credentials.
// Phrases are persisted with expiry so issuance survives restarts; the
// first validated registration phrase makes its user the admin.
package mnemonic

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/log"
	"github.com/timesheet-app/timesheet/internal/store/sqlite"
	"github.com/tyler-smith/go-bip39"
)

// DefaultTTL is how long an issued phrase stays valid.
const DefaultTTL = time.Hour

// Service issues and consumes pending mnemonics.
type Service struct {
	store  *sqlite.Store
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a credential service over the store.
func NewService(store *sqlite.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		logger: log.WithComponent("mnemonic"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate produces a 24-word phrase from 256 bits of entropy.
func (s *Service) Generate() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", domain.Wrap(domain.KindInternal, err, "generate entropy")
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", domain.Wrap(domain.KindInternal, err, "derive mnemonic")
	}
	return phrase, nil
}

// Issue generates a registration phrase and stores it as pending with
// the given ttl (DefaultTTL when zero).
func (s *Service) Issue(ctx context.Context, ttl time.Duration) (string, error) {
	return s.issue(ctx, nil, ttl)
}

// IssueLogin generates a browser login phrase bound to the given user.
func (s *Service) IssueLogin(ctx context.Context, user *domain.User, ttl time.Duration) (string, error) {
	return s.issue(ctx, &user.ID, ttl)
}

func (s *Service) issue(ctx context.Context, userID *string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	phrase, err := s.Generate()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	m := &domain.PendingMnemonic{
		ID:        uuid.New().String(),
		UserID:    userID,
		Phrase:    phrase,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.store.InsertMnemonic(ctx, m); err != nil {
		return "", err
	}

	s.logger.Info().
		Str("event", "mnemonic.issued").
		Bool("login", userID != nil).
		Time("expires_at", m.ExpiresAt).
		Msg("pending mnemonic issued")
	return phrase, nil
}

// Normalize canonicalises a user-supplied phrase: lowercase, single
// spaces. Returns InvalidMnemonic unless it is a valid 24-word BIP39
// phrase.
func Normalize(raw string) (string, error) {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	if len(words) != 24 {
		return "", domain.E(domain.KindInvalidMnemonic, "expected 24 words, got %d", len(words))
	}
	phrase := strings.Join(words, " ")
	if !bip39.IsMnemonicValid(phrase) {
		return "", domain.E(domain.KindInvalidMnemonic, "phrase failed checksum validation")
	}
	return phrase, nil
}

// ValidateAndConsume atomically consumes the phrase. At most one of any
// concurrent calls with the same phrase succeeds.
func (s *Service) ValidateAndConsume(ctx context.Context, raw string) error {
	_, err := s.consume(ctx, raw)
	return err
}

func (s *Service) consume(ctx context.Context, raw string) (*domain.PendingMnemonic, error) {
	phrase, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	return s.store.ConsumeMnemonic(ctx, phrase, s.now().UTC())
}

// Login consumes a login phrase and returns the user it was issued to.
func (s *Service) Login(ctx context.Context, raw string) (*domain.User, error) {
	m, err := s.consume(ctx, raw)
	if err != nil {
		return nil, err
	}
	if m.UserID == nil {
		return nil, domain.E(domain.KindInvalidMnemonic, "not a login phrase")
	}
	user, err := s.store.UserByID(ctx, *m.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.E(domain.KindNotRegistered, "user no longer exists")
	}

	s.logger.Info().
		Str("event", "mnemonic.login").
		Str("user_id", user.ID).
		Msg("login phrase consumed")
	return user, nil
}

// Register consumes a registration phrase and creates the user for the
// given platform identity. The first user ever registered becomes admin.
// Consume, admin check and insert commit as one transaction: a failed
// registration never burns the phrase, and two racing first
// registrations cannot both become admin.
func (s *Service) Register(ctx context.Context, externalID int64, raw string) (*domain.User, error) {
	phrase, err := Normalize(raw)
	if err != nil {
		return nil, err
	}

	var user *domain.User
	err = s.store.RunInTx(ctx, func(tx *sqlite.Store) error {
		existing, err := tx.UserByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.E(domain.KindAlreadyRegistered, "already registered")
		}

		m, err := tx.ConsumeMnemonic(ctx, phrase, s.now().UTC())
		if err != nil {
			return err
		}
		if m.UserID != nil {
			return domain.E(domain.KindInvalidMnemonic, "login phrase cannot register a new user")
		}

		count, err := tx.CountUsers(ctx)
		if err != nil {
			return err
		}
		user = domain.NewUser(externalID, count == 0, s.now())
		return tx.InsertUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("event", "mnemonic.registered").
		Str("user_id", user.ID).
		Bool("admin", user.IsAdmin).
		Msg("user registered")
	return user, nil
}

// SweepExpired deletes pending phrases past their expiry.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredMnemonics(ctx, s.now().UTC())
}
