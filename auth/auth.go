// Package auth emulates the platform's session and credential
// bookkeeping: a user directory and a single current session, each
// persisted as its own durable blob.
package auth

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mockbase/mockbase/kv"
	"github.com/mockbase/mockbase/pkg"
	"github.com/mockbase/mockbase/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	UsersKey   = "mockbase/users"
	SessionKey = "mockbase/session"
)

var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrUserExists         = errors.New("user already registered")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrNoSession          = errors.New("no active session")
)

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash []byte `json:"password_hash"`
	CreatedAt    string `json:"created_at"`
}

type Session struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	CreatedAt   string `json:"created_at"`
}

type Auth struct {
	mu sync.Mutex

	// email -> user
	users   pkg.Map[string, *User]
	session *Session
	kv      kv.Store
	log     *zap.SugaredLogger
}

// New builds the auth emulator and hydrates the user directory and
// session blobs. Corrupt blobs hydrate empty, best-effort.
func New(kvs kv.Store, log *zap.SugaredLogger) *Auth {
	if kvs == nil {
		kvs = kv.NewMemory()
	}
	if log == nil {
		log = pkg.NopLogger()
	}

	a := &Auth{users: pkg.Map[string, *User]{}, kv: kvs, log: log}

	if raw, ok, err := kvs.Get(UsersKey); err != nil {
		log.Errorw("read users blob", "error", err)
	} else if ok {
		if err := json.Unmarshal(raw, &a.users); err != nil {
			log.Errorw("decode users blob", "error", err)
		}
	}

	if raw, ok, err := kvs.Get(SessionKey); err != nil {
		log.Errorw("read session blob", "error", err)
	} else if ok {
		session := &Session{}
		if err := json.Unmarshal(raw, session); err != nil {
			log.Errorw("decode session blob", "error", err)
		} else {
			a.session = session
		}
	}

	return a
}

// SignUp registers a new user and opens a session for it.
func (a *Auth) SignUp(email, password string) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.users.Has(email) {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    store.Timestamp(),
	}
	a.users.Set(email, user)
	a.persistUsers()

	return a.openSession(user), nil
}

// SignIn opens a session for an existing user.
func (a *Auth) SignIn(email, password string) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.users.Has(email) {
		return nil, ErrInvalidCredentials
	}
	user := a.users.Get(email)
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return a.openSession(user), nil
}

// SignOut closes the current session. Signing out with no session is
// an error the caller can branch on.
func (a *Auth) SignOut() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return ErrNoSession
	}
	a.session = nil
	if err := a.kv.Delete(SessionKey); err != nil {
		a.log.Errorw("clear session blob", "error", err)
	}
	return nil
}

// CurrentSession returns the active session, if any.
func (a *Auth) CurrentSession() (*Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return nil, false
	}
	session := *a.session
	return &session, true
}

func (a *Auth) openSession(user *User) *Session {
	a.session = &Session{
		AccessToken: uuid.NewString(),
		UserID:      user.ID,
		Email:       user.Email,
		CreatedAt:   store.Timestamp(),
	}
	a.persistSession()
	session := *a.session
	return &session
}

func (a *Auth) persistUsers() {
	raw, err := json.Marshal(a.users)
	if err != nil {
		a.log.Errorw("encode users blob", "error", err)
		return
	}
	if err := a.kv.Set(UsersKey, raw); err != nil {
		a.log.Errorw("write users blob", "error", err)
	}
}

func (a *Auth) persistSession() {
	raw, err := json.Marshal(a.session)
	if err != nil {
		a.log.Errorw("encode session blob", "error", err)
		return
	}
	if err := a.kv.Set(SessionKey, raw); err != nil {
		a.log.Errorw("write session blob", "error", err)
	}
}
