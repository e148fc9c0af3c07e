package chat

import (
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/pingpad/pingpad/internal/database"
	"github.com/pingpad/pingpad/internal/testutil"
)

var testSigningKey = []byte("test-signing-key")

func newTestSessionService(t *testing.T, db database.ChatRepository) *SessionService {
	return NewSessionService(testutil.TestLogger(t), db, testSigningKey, time.Hour)
}

func TestRegister(t *testing.T) {
	tcases := []struct {
		name        string
		username    string
		email       string
		password    string
		mockErr     error
		expectedErr error
	}{
		{
			name:     "successful registration",
			username: "testuser",
			email:    "test@example.com",
			password: "password",
		},
		{
			name:        "missing username",
			email:       "test@example.com",
			password:    "password",
			expectedErr: ErrBadRequest,
		},
		{
			name:        "missing email",
			username:    "testuser",
			password:    "password",
			expectedErr: ErrBadRequest,
		},
		{
			name:        "missing password",
			username:    "testuser",
			email:       "test@example.com",
			expectedErr: ErrBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockChatRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.expectedErr == nil {
				mockRepo.On("CreateAccount", mock.MatchedBy(func(params database.CreateAccountParams) bool {
					return params.Username == tc.username &&
						params.EmailAddress == tc.email &&
						bcrypt.CompareHashAndPassword([]byte(params.PasswordHash), []byte(tc.password)) == nil
				})).Return(database.User{
					Id:           1,
					Username:     tc.username,
					EmailAddress: tc.email,
				}, tc.mockErr).Once()
			}

			svc := newTestSessionService(t, mockRepo)
			user, err := svc.Register(tc.username, tc.email, tc.password)

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr, "expected error to match")
				return
			}

			assert.NoError(t, err, "expected no error registering")
			assert.Equal(t, 1, user.Id, "expected user id to be set")
			assert.Equal(t, tc.username, user.Username, "expected username to match")
		})
	}
}

func TestLogin(t *testing.T) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	assert.NoError(t, err, "expected no error hashing password")

	dbUser := database.User{
		Id:           1,
		Username:     "testuser",
		EmailAddress: "test@example.com",
		PasswordHash: string(passwordHash),
	}

	t.Run("successful login", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAccountByEmail", dbUser.EmailAddress).Return(dbUser, nil).Once()
		mockRepo.On("CreateSession", mock.MatchedBy(func(params database.CreateSessionParams) bool {
			return params.AccountId == dbUser.Id && params.ExpiresAt.After(time.Now())
		})).Return(database.Session{
			Id:        7,
			AccountId: dbUser.Id,
			ExpiresAt: time.Now().Add(time.Hour),
		}, nil).Once()

		svc := newTestSessionService(t, mockRepo)
		user, token, err := svc.Login(dbUser.EmailAddress, "password")
		assert.NoError(t, err, "expected no error logging in")
		assert.Equal(t, dbUser.Id, user.Id, "expected user id to match")
		assert.NotEmpty(t, token, "expected a signed token")

		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			return testSigningKey, nil
		})
		assert.NoError(t, err, "expected token to parse")
		claims := parsed.Claims.(jwt.MapClaims)
		assert.Equal(t, float64(7), claims[sessionIdClaim], "expected session id claim")
	})

	t.Run("unknown email", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAccountByEmail", "nobody@example.com").Return(database.User{}, sql.ErrNoRows).Once()

		svc := newTestSessionService(t, mockRepo)
		_, _, err := svc.Login("nobody@example.com", "password")
		assert.ErrorIs(t, err, ErrNotFound, "expected not found for unknown email")
	})

	t.Run("wrong password", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAccountByEmail", dbUser.EmailAddress).Return(dbUser, nil).Once()

		svc := newTestSessionService(t, mockRepo)
		_, _, err := svc.Login(dbUser.EmailAddress, "wrong")
		assert.ErrorIs(t, err, ErrUnauthorized, "expected unauthorized for wrong password")
		mockRepo.AssertNotCalled(t, "CreateSession", mock.Anything)
	})
}

func signSessionToken(t *testing.T, key []byte, sessionId int, exp time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		sessionIdClaim: sessionId,
		"exp":          exp.Unix(),
	})
	signed, err := token.SignedString(key)
	assert.NoError(t, err, "expected no error signing test token")
	return signed
}

func TestAuthenticate(t *testing.T) {
	t.Run("valid token and live session", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetSessionById", 7).Return(database.Session{
			Id:        7,
			AccountId: 1,
			ExpiresAt: time.Now().Add(time.Hour),
		}, nil).Once()

		svc := newTestSessionService(t, mockRepo)
		identity, err := svc.Authenticate(signSessionToken(t, testSigningKey, 7, time.Now().Add(time.Hour)))
		assert.NoError(t, err, "expected no error authenticating")
		assert.Equal(t, Identity{UserId: 1, SessionId: 7}, identity, "expected identity from session row")
	})

	t.Run("empty token", func(t *testing.T) {
		svc := newTestSessionService(t, &database.MockChatRepository{})
		_, err := svc.Authenticate("")
		assert.ErrorIs(t, err, ErrUnauthorized, "expected unauthorized for empty token")
	})

	t.Run("garbage token", func(t *testing.T) {
		svc := newTestSessionService(t, &database.MockChatRepository{})
		_, err := svc.Authenticate("not-a-token")
		assert.ErrorIs(t, err, ErrUnauthorized, "expected unauthorized for garbage token")
	})

	t.Run("token signed with wrong key", func(t *testing.T) {
		svc := newTestSessionService(t, &database.MockChatRepository{})
		token := signSessionToken(t, []byte("other-key"), 7, time.Now().Add(time.Hour))
		_, err := svc.Authenticate(token)
		assert.ErrorIs(t, err, ErrUnauthorized, "expected unauthorized for bad signature")
	})

	t.Run("session row missing", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetSessionById", 7).Return(database.Session{}, sql.ErrNoRows).Once()

		svc := newTestSessionService(t, mockRepo)
		_, err := svc.Authenticate(signSessionToken(t, testSigningKey, 7, time.Now().Add(time.Hour)))
		assert.ErrorIs(t, err, ErrUnauthorized, "expected unauthorized when session row is gone")
	})

	t.Run("expired session row", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		// token itself still valid, the persisted row is what expired
		mockRepo.On("GetSessionById", 7).Return(database.Session{
			Id:        7,
			AccountId: 1,
			ExpiresAt: time.Now().Add(-time.Minute),
		}, nil).Once()

		svc := newTestSessionService(t, mockRepo)
		_, err := svc.Authenticate(signSessionToken(t, testSigningKey, 7, time.Now().Add(time.Hour)))
		assert.ErrorIs(t, err, ErrUnauthorized, "expected unauthorized for expired session")
	})
}

func TestSessionUser(t *testing.T) {
	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("GetAccountById", 1).Return(database.User{Id: 1, Username: "testuser"}, nil).Once()
	mockRepo.On("GetAccountById", 2).Return(database.User{}, sql.ErrNoRows).Once()

	svc := newTestSessionService(t, mockRepo)

	user, err := svc.User(1)
	assert.NoError(t, err, "expected no error fetching user")
	assert.Equal(t, "testuser", user.Username, "expected username to match")

	_, err = svc.User(2)
	assert.ErrorIs(t, err, ErrNotFound, "expected not found for missing user")
}
