package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/pingpad/pingpad/internal/database"
	"github.com/pingpad/pingpad/internal/types"
)

const sessionIdClaim = "session-id"

// Identity is the minimal authenticated identity resolved from a bearer
// token.
type Identity struct {
	UserId    int
	SessionId int
}

type SessionService struct {
	log        *log.Logger
	db         database.ChatRepository
	signingKey []byte
	sessionTTL time.Duration
}

func NewSessionService(logger *log.Logger, db database.ChatRepository, signingKey []byte, sessionTTL time.Duration) *SessionService {
	return &SessionService{
		log:        logger,
		db:         db,
		signingKey: signingKey,
		sessionTTL: sessionTTL,
	}
}

func (s *SessionService) Register(username, email, password string) (types.User, error) {
	if username == "" || email == "" || password == "" {
		return types.User{}, fmt.Errorf("%w: username, email and password are required", ErrBadRequest)
	}

	pwdHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.db.CreateAccount(database.CreateAccountParams{
		Username:     username,
		EmailAddress: email,
		PasswordHash: string(pwdHash),
	})
	if err != nil {
		return types.User{}, fmt.Errorf("create account: %w", err)
	}

	return types.User{
		Id:           user.Id,
		Username:     user.Username,
		EmailAddress: user.EmailAddress,
		CreatedAt:    user.CreatedAt,
	}, nil
}

// Login verifies credentials, persists a new session row and returns a
// signed bearer token carrying the session id. Multiple concurrent sessions
// per user are permitted.
func (s *SessionService) Login(email, password string) (types.User, string, error) {
	dbUser, err := s.db.GetAccountByEmail(email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, "", fmt.Errorf("%w: unknown email", ErrNotFound)
		}
		return types.User{}, "", fmt.Errorf("get account: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(dbUser.PasswordHash), []byte(password)) != nil {
		return types.User{}, "", ErrUnauthorized
	}

	session, err := s.db.CreateSession(database.CreateSessionParams{
		AccountId: dbUser.Id,
		ExpiresAt: time.Now().Add(s.sessionTTL),
	})
	if err != nil {
		return types.User{}, "", fmt.Errorf("create session: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		sessionIdClaim: session.Id,
		"exp":          session.ExpiresAt.Unix(),
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return types.User{}, "", fmt.Errorf("sign token: %w", err)
	}

	return types.User{
		Id:           dbUser.Id,
		Username:     dbUser.Username,
		EmailAddress: dbUser.EmailAddress,
		CreatedAt:    dbUser.CreatedAt,
	}, signed, nil
}

// Authenticate resolves a bearer token to an identity. The token signature
// proves integrity, but the persisted session row is the source of truth: a
// token whose session is missing or whose expiry is not strictly in the
// future is rejected.
func (s *SessionService) Authenticate(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrUnauthorized
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrUnauthorized
	}

	sessionId, ok := claims[sessionIdClaim].(float64)
	if !ok {
		return Identity{}, ErrUnauthorized
	}

	session, err := s.db.GetSessionById(int(sessionId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, fmt.Errorf("get session: %w", err)
	}

	if !session.ExpiresAt.After(time.Now()) {
		return Identity{}, ErrUnauthorized
	}

	return Identity{UserId: session.AccountId, SessionId: session.Id}, nil
}

func (s *SessionService) User(userId int) (types.User, error) {
	user, err := s.db.GetAccountById(userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("get account: %w", err)
	}

	return types.User{
		Id:           user.Id,
		Username:     user.Username,
		EmailAddress: user.EmailAddress,
		CreatedAt:    user.CreatedAt,
	}, nil
}
