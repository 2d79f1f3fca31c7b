package controllers

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chatclient/models"
)

var (
	errInvalidCredentials = errors.New("incorrect email or password")
	errEmailInUse         = errors.New("email already in use")
)

type account struct {
	user models.User
	hash []byte
}

// Accounts is the dev server's stand-in for the identity provider.
type Accounts struct {
	// RequireVerification makes sign-up succeed without issuing a session.
	RequireVerification bool

	mu      sync.RWMutex
	byEmail map[string]*account
	tokens  map[string]models.User
}

func NewAccounts() *Accounts {
	return &Accounts{
		byEmail: make(map[string]*account),
		tokens:  make(map[string]models.User),
	}
}

func (a *Accounts) SignUp(email, password string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return models.User{}, errInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return models.User{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byEmail[email]; ok {
		return models.User{}, errEmailInUse
	}
	acc := &account{user: models.User{ID: uuid.New().String(), Email: email}, hash: hash}
	a.byEmail[email] = acc
	return acc.user, nil
}

func (a *Accounts) SignIn(email, password string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	a.mu.RLock()
	acc, ok := a.byEmail[email]
	a.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return models.User{}, errInvalidCredentials
	}
	return acc.user, nil
}

// Issue mints a new access token for user.
func (a *Accounts) Issue(user models.User) string {
	token := uuid.New().String()
	a.mu.Lock()
	a.tokens[token] = user
	a.mu.Unlock()
	return token
}

func (a *Accounts) Verify(token string) (models.User, bool) {
	if token == "" {
		return models.User{}, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	u, ok := a.tokens[token]
	return u, ok
}

type AuthController struct {
	Accounts *Accounts
	Log      *zap.Logger
}

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authSession struct {
	AccessToken          string      `json:"accessToken"`
	AccessTokenExpiresIn int         `json:"accessTokenExpiresIn"`
	User                 models.User `json:"user"`
}

func (ac *AuthController) SignIn(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, authError(http.StatusBadRequest, "invalid-request", err.Error()))
		return
	}
	user, err := ac.Accounts.SignIn(req.Email, req.Password)
	if err != nil {
		ac.Log.Info("sign-in rejected", zap.String("email", req.Email))
		c.JSON(http.StatusUnauthorized, authError(http.StatusUnauthorized, "invalid-email-password", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": ac.session(user)})
}

func (ac *AuthController) SignUp(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, authError(http.StatusBadRequest, "invalid-request", err.Error()))
		return
	}
	user, err := ac.Accounts.SignUp(req.Email, req.Password)
	if errors.Is(err, errEmailInUse) {
		c.JSON(http.StatusConflict, authError(http.StatusConflict, "email-already-in-use", err.Error()))
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, authError(http.StatusBadRequest, "invalid-request", err.Error()))
		return
	}
	if ac.Accounts.RequireVerification {
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": ac.session(user)})
}

func (ac *AuthController) session(user models.User) authSession {
	return authSession{
		AccessToken:          ac.Accounts.Issue(user),
		AccessTokenExpiresIn: 900,
		User:                 user,
	}
}

func authError(status int, code, message string) gin.H {
	return gin.H{"status": status, "error": code, "message": message}
}
