package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/theluxar/auth-service/internal/model"
	"github.com/theluxar/auth-service/internal/repository"
)

// In-memory repository fakes. They mirror the contract of the gorm
// implementations, including the sentinel errors and the atomic rotate.

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	users    map[string]*model.User
	seq      int
}

func newFakeAccountRepo(users *fakeUserRepo) *fakeAccountRepo {
	return &fakeAccountRepo{
		accounts: make(map[string]*model.Account),
		users:    users.users,
	}
}

func (r *fakeAccountRepo) attachUser(account *model.Account) *model.Account {
	clone := *account
	if user, ok := r.users[account.UserID]; ok {
		clone.User = *user
	}
	return &clone
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.attachUser(account), nil
}

func (r *fakeAccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, account := range r.accounts {
		if account.Email == email {
			return r.attachUser(account), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccountRepo) GetByUserID(ctx context.Context, userID string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, account := range r.accounts {
		if account.UserID == userID {
			return r.attachUser(account), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccountRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, account := range r.accounts {
		if account.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if account.ID == "" {
		r.seq++
		account.ID = fmt.Sprintf("acc-%d", r.seq)
	}
	account.CreatedAt = time.Now()
	stored := *account
	r.accounts[account.ID] = &stored
	return nil
}

func (r *fakeAccountRepo) SetActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.Active = active
	return nil
}

func (r *fakeAccountRepo) UpdateSession(ctx context.Context, id string, refreshTokenHash string, lastLogin time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	hash := refreshTokenHash
	login := lastLogin
	account.RefreshTokenHash = &hash
	account.LastLogin = &login
	return nil
}

func (r *fakeAccountRepo) ClearSession(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, account := range r.accounts {
		if account.UserID == userID {
			account.RefreshTokenHash = nil
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeAccountRepo) UpdatePassword(ctx context.Context, id string, passwordHash string, clearRefresh bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	hash := passwordHash
	account.PasswordHash = &hash
	if clearRefresh {
		account.RefreshTokenHash = nil
	}
	return nil
}

func (r *fakeAccountRepo) RotateRefreshToken(ctx context.Context, userID string, matches func(storedHash string) bool, newHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, account := range r.accounts {
		if account.UserID != userID {
			continue
		}
		if account.RefreshTokenHash == nil || !matches(*account.RefreshTokenHash) {
			return repository.ErrStaleRefreshToken
		}
		hash := newHash
		login := now
		account.RefreshTokenHash = &hash
		account.LastLogin = &login
		return nil
	}
	return repository.ErrNotFound
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
	seq   int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		r.seq++
		user.ID = fmt.Sprintf("user-%d", r.seq)
	}
	user.CreatedAt = time.Now()
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

type fakePermissionRepo struct {
	mu      sync.Mutex
	records map[string]*model.UserPermission
	seq     int
}

func newFakePermissionRepo() *fakePermissionRepo {
	return &fakePermissionRepo{records: make(map[string]*model.UserPermission)}
}

func (r *fakePermissionRepo) GetByOwnerID(ctx context.Context, ownerID string) (*model.UserPermission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range r.records {
		if record.OwnerID == ownerID {
			clone := *record
			clone.Permissions = append([]string(nil), record.Permissions...)
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakePermissionRepo) Create(ctx context.Context, perm *model.UserPermission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if perm.ID == "" {
		r.seq++
		perm.ID = fmt.Sprintf("perm-%d", r.seq)
	}
	stored := *perm
	r.records[perm.ID] = &stored
	return nil
}

func (r *fakePermissionRepo) UpdatePermissions(ctx context.Context, id string, permissions []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	record.Permissions = append([]string(nil), permissions...)
	return nil
}

// recordingMailer captures outgoing mail instead of publishing it.
type sentMail struct {
	kind  string
	to    string
	token string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *recordingMailer) SendActivationEmail(ctx context.Context, to, token string) error {
	return m.record("activation", to, token)
}

func (m *recordingMailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	return m.record("reset", to, token)
}

func (m *recordingMailer) record(kind, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{kind: kind, to: to, token: token})
	return nil
}

func (m *recordingMailer) last() (sentMail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sent) == 0 {
		return sentMail{}, errors.New("no mail sent")
	}
	return m.sent[len(m.sent)-1], nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
