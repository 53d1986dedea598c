package connect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/npezzotti/ravenchat/internal/database"
	"golang.org/x/crypto/bcrypt"
)

const (
	NumQuestions      = 3
	minPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")

	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9.-]{1,50}$`)
)

type RegisterParams struct {
	Username  string
	Password  string
	Questions []string
	Answers   []string
}

func validateList(field string, vals []string) error {
	if len(vals) != NumQuestions {
		return invalid(field, fmt.Sprintf("exactly %d required", NumQuestions))
	}
	for _, v := range vals {
		if strings.TrimSpace(v) == "" {
			return invalid(field, "must not be blank")
		}
	}
	return nil
}

func (p RegisterParams) validate() error {
	if !usernamePattern.MatchString(p.Username) {
		return invalid("username", "must be 1-50 letters, digits, dots or dashes")
	}
	if len(p.Password) < minPasswordLength {
		return invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if err := validateList("questions", p.Questions); err != nil {
		return err
	}
	return validateList("answers", p.Answers)
}

// Register creates a user and the poem shown to others who try to connect.
func (s *Service) Register(ctx context.Context, p RegisterParams) (database.User, error) {
	if err := p.validate(); err != nil {
		return database.User{}, err
	}

	pwdHash, err := hashPassword(p.Password)
	if err != nil {
		return database.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.repo.CreateUser(ctx, database.CreateUserParams{
		Username:     p.Username,
		PasswordHash: pwdHash,
		Questions:    p.Questions,
		Answers:      p.Answers,
		Poem:         s.poems.Generate(ctx, p.Answers),
	})
	if err != nil {
		if errors.Is(err, database.ErrConflict) {
			return database.User{}, fmt.Errorf("username %q: %w", p.Username, ErrConflict)
		}
		return database.User{}, storageError("create user", err)
	}

	s.log.Sugar().Infow("user registered", "user_id", u.Id, "username", u.Username)
	return u, nil
}

// Authenticate returns the user when password matches. Unknown users yield
// ErrNotFound.
func (s *Service) Authenticate(ctx context.Context, username, password string) (database.User, error) {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.User{}, ErrNotFound
		}
		return database.User{}, storageError("get user", err)
	}

	if !verifyPassword(u.PasswordHash, password) {
		return database.User{}, ErrInvalidCredentials
	}

	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id int) (database.User, error) {
	u, err := s.repo.GetUserById(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.User{}, ErrNotFound
		}
		return database.User{}, storageError("get user", err)
	}

	return u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]database.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, storageError("list users", err)
	}

	return users, nil
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
