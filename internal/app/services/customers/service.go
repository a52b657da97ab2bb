package customers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/shopforge/shopforge/internal/app/domain/customer"
	"github.com/shopforge/shopforge/internal/app/storage"
	"github.com/shopforge/shopforge/internal/events"
	"github.com/shopforge/shopforge/pkg/logger"
)

const (
	purposeVerify = "verify"
	purposeReset  = "password-reset"
)

// Options configures token issuance.
type Options struct {
	TokenSecret string
	// TokenTTL bounds verification and reset tokens. Defaults to 24h.
	TokenTTL time.Duration
}

// Service registers and authenticates customers. Verification and password
// reset flow through signed tokens delivered by the email pipeline.
type Service struct {
	store  storage.CustomerStore
	bus    *events.Bus
	log    *logger.Logger
	secret []byte
	ttl    time.Duration
}

// New creates a configured customers service.
func New(store storage.CustomerStore, bus *events.Bus, log *logger.Logger, opts Options) *Service {
	if log == nil {
		log = logger.NewDefault("customers")
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		store:  store,
		bus:    bus,
		log:    log,
		secret: []byte(opts.TokenSecret),
		ttl:    ttl,
	}
}

type tokenClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func (s *Service) issueToken(customerID, purpose string) (string, error) {
	claims := tokenClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   customerID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) parseToken(token, purpose string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || claims.Purpose != purpose || claims.Subject == "" {
		return "", fmt.Errorf("token not valid for %s", purpose)
	}
	return claims.Subject, nil
}

// Register creates an unverified customer and publishes the registration
// event carrying the verification token.
func (s *Service) Register(ctx context.Context, emailAddr, firstName, lastName, password string) (customer.Customer, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)

	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return customer.Customer{}, fmt.Errorf("a valid email is required")
	}
	if len(password) < 8 {
		return customer.Customer{}, fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return customer.Customer{}, fmt.Errorf("hash password: %w", err)
	}

	c, err := s.store.CreateCustomer(ctx, customer.Customer{
		Email:        emailAddr,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: string(hash),
	})
	if err != nil {
		return customer.Customer{}, err
	}

	token, err := s.issueToken(c.ID, purposeVerify)
	if err != nil {
		return customer.Customer{}, fmt.Errorf("issue verification token: %w", err)
	}

	s.log.WithField("customer_id", c.ID).WithField("email", c.Email).Info("customer registered")
	if s.bus != nil {
		s.bus.Publish(events.New(events.CustomerRegistered, "customer", c.ID, map[string]any{
			"email": c.Email,
			"token": token,
		}))
	}
	return c, nil
}

// Verify marks the token's customer as verified.
func (s *Service) Verify(ctx context.Context, token string) (customer.Customer, error) {
	customerID, err := s.parseToken(token, purposeVerify)
	if err != nil {
		return customer.Customer{}, err
	}
	c, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return customer.Customer{}, err
	}
	if c.Verified {
		return c, nil
	}
	c.Verified = true
	c, err = s.store.UpdateCustomer(ctx, c)
	if err != nil {
		return customer.Customer{}, err
	}
	if s.bus != nil {
		s.bus.Publish(events.New(events.CustomerVerified, "customer", c.ID, map[string]any{"email": c.Email}))
	}
	return c, nil
}

// RequestPasswordReset publishes a reset event for the email pipeline. An
// unknown email is not an error, to avoid account probing.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	c, err := s.store.GetCustomerByEmail(ctx, strings.TrimSpace(emailAddr))
	if err != nil {
		s.log.WithField("email", emailAddr).Debug("password reset requested for unknown email")
		return nil
	}
	token, err := s.issueToken(c.ID, purposeReset)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	if s.bus != nil {
		s.bus.Publish(events.New(events.CustomerPasswordResetRequested, "customer", c.ID, map[string]any{
			"email": c.Email,
			"token": token,
		}))
	}
	return nil
}

// ResetPassword sets a new password for the token's customer.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	customerID, err := s.parseToken(token, purposeReset)
	if err != nil {
		return err
	}
	c, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	c.PasswordHash = string(hash)
	_, err = s.store.UpdateCustomer(ctx, c)
	return err
}

// Authenticate checks an email/password pair.
func (s *Service) Authenticate(ctx context.Context, emailAddr, password string) (customer.Customer, error) {
	c, err := s.store.GetCustomerByEmail(ctx, strings.TrimSpace(emailAddr))
	if err != nil {
		return customer.Customer{}, fmt.Errorf("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) != nil {
		return customer.Customer{}, fmt.Errorf("invalid credentials")
	}
	return c, nil
}

// Get fetches one customer.
func (s *Service) Get(ctx context.Context, id string) (customer.Customer, error) {
	return s.store.GetCustomer(ctx, id)
}

// List returns all customers.
func (s *Service) List(ctx context.Context) ([]customer.Customer, error) {
	return s.store.ListCustomers(ctx)
}
