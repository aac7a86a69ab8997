// auth.go — сессии ALM и хранение учётных данных.
//
// Сессия — явное значение, выдаваемое вызывающему и передаваемое
// в каждый вызов клиента ALM; сервис держит по одной активной сессии
// на пользователя для повторного использования между запросами.
// Пароль ALM хранится в PostgreSQL зашифрованным AES-256-GCM и нужен
// для прозрачного повторного входа при истечении сессии (401).
package service

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/arturkryukov/almstore/internal/domain/model"
	"github.com/arturkryukov/almstore/internal/repository"
)

// ErrNoSession — у пользователя нет активной сессии ALM.
var ErrNoSession = errors.New("нет активной сессии ALM, выполните вход")

// Authenticator — операции входа и выхода клиента ALM.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (model.Session, error)
	Logout(ctx context.Context, sess model.Session) error
}

// SessionService — управление сессиями ALM.
// Реализует almclient.SessionRenewer.
type SessionService struct {
	alm    Authenticator
	creds  repository.CredentialRepository
	key    []byte
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]model.Session
}

// NewSessionService создаёт сервис сессий.
// key — ключ AES-256 (32 байта) для шифрования паролей.
func NewSessionService(alm Authenticator, creds repository.CredentialRepository, key []byte, logger *slog.Logger) *SessionService {
	return &SessionService{
		alm:      alm,
		creds:    creds,
		key:      key,
		logger:   logger.With(slog.String("component", "session_service")),
		sessions: make(map[string]model.Session),
	}
}

// Login выполняет вход в ALM, сохраняет зашифрованные учётные данные
// для последующего прозрачного повторного входа и кэширует сессию.
func (s *SessionService) Login(ctx context.Context, username, password string) (model.Session, error) {
	sess, err := s.alm.Authenticate(ctx, username, password)
	if err != nil {
		return model.Session{}, err
	}

	encrypted, err := encryptSecret(s.key, []byte(password))
	if err != nil {
		return model.Session{}, fmt.Errorf("шифрование пароля: %w", err)
	}
	if err := s.creds.Upsert(ctx, &model.Credential{
		OwnerUser:         username,
		EncryptedPassword: encrypted,
	}); err != nil {
		return model.Session{}, err
	}

	s.mu.Lock()
	s.sessions[username] = sess
	s.mu.Unlock()

	s.logger.Info("пользователь вошёл в ALM", slog.String("user", username))
	return sess, nil
}

// Session возвращает активную сессию пользователя.
func (s *SessionService) Session(user string) (model.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[user]
	s.mu.RUnlock()
	if !ok {
		return model.Session{}, ErrNoSession
	}
	return sess, nil
}

// Renew выполняет повторный вход по сохранённым учётным данным.
// Вызывается клиентом ALM при 401. Реализует almclient.SessionRenewer.
func (s *SessionService) Renew(ctx context.Context, user string) (model.Session, error) {
	cred, err := s.creds.Get(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, ErrNoSession
		}
		return model.Session{}, err
	}

	password, err := decryptSecret(s.key, cred.EncryptedPassword)
	if err != nil {
		return model.Session{}, fmt.Errorf("расшифровка пароля: %w", err)
	}

	sess, err := s.alm.Authenticate(ctx, user, string(password))
	if err != nil {
		return model.Session{}, err
	}

	s.mu.Lock()
	s.sessions[user] = sess
	s.mu.Unlock()

	return sess, nil
}

// Logout завершает сессию ALM и забывает её.
// Зашифрованные учётные данные остаются: повторный вход по ним
// возможен до явного удаления.
func (s *SessionService) Logout(ctx context.Context, user string) error {
	s.mu.Lock()
	sess, ok := s.sessions[user]
	delete(s.sessions, user)
	s.mu.Unlock()

	if !ok {
		return ErrNoSession
	}

	if err := s.alm.Logout(ctx, sess); err != nil {
		// Сессия в любом случае истечёт на стороне ALM
		s.logger.Warn("ошибка выхода из ALM", slog.String("user", user), slog.String("error", err.Error()))
	}
	return nil
}

// --- Шифрование учётных данных ---

// encryptSecret шифрует секрет AES-256-GCM.
// Результат — nonce, за которым следует шифротекст.
func encryptSecret(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decryptSecret расшифровывает секрет, зашифрованный encryptSecret.
func decryptSecret(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("повреждённый шифротекст: длина %d меньше nonce", len(data))
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertext, nil)
}
