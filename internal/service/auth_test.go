package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"testing"

	"github.com/arturkryukov/almstore/internal/domain/model"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("генерация ключа: %v", err)
	}
	return key
}

// TestEncryptDecryptRoundTrip проверяет шифрование учётных данных.
func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	secret := []byte("p@ssw0rd-алм")

	encrypted, err := encryptSecret(key, secret)
	if err != nil {
		t.Fatalf("encryptSecret ошибка: %v", err)
	}
	if bytes.Contains(encrypted, secret) {
		t.Error("шифротекст содержит открытый пароль")
	}

	decrypted, err := decryptSecret(key, encrypted)
	if err != nil {
		t.Fatalf("decryptSecret ошибка: %v", err)
	}
	if !bytes.Equal(decrypted, secret) {
		t.Errorf("расшифровано %q, ожидалось %q", decrypted, secret)
	}

	// Чужой ключ не расшифровывает
	if _, err := decryptSecret(testKey(t), encrypted); err == nil {
		t.Error("ожидалась ошибка расшифровки чужим ключом")
	}
	// Обрезанный шифротекст отклоняется
	if _, err := decryptSecret(key, encrypted[:4]); err == nil {
		t.Error("ожидалась ошибка на обрезанном шифротексте")
	}
}

// TestSessionService_LoginAndSession проверяет вход: сессия кэшируется,
// пароль сохраняется только в зашифрованном виде.
func TestSessionService_LoginAndSession(t *testing.T) {
	key := testKey(t)
	creds := newMemCredRepo()
	auth := &mockAuthenticator{
		authenticateFn: func(_ context.Context, username, password string) (model.Session, error) {
			if password != "secret" {
				return model.Session{}, errors.New("неверный пароль")
			}
			return model.Session{User: username, LWSSOCookie: "lwsso-1"}, nil
		},
	}
	svc := NewSessionService(auth, creds, key, slog.Default())

	sess, err := svc.Login(context.Background(), "ivanov", "secret")
	if err != nil {
		t.Fatalf("Login ошибка: %v", err)
	}
	if sess.LWSSOCookie != "lwsso-1" {
		t.Errorf("LWSSOCookie = %q", sess.LWSSOCookie)
	}

	cached, err := svc.Session("ivanov")
	if err != nil {
		t.Fatalf("Session ошибка: %v", err)
	}
	if cached.LWSSOCookie != "lwsso-1" {
		t.Errorf("кэшированная сессия = %+v", cached)
	}

	stored, err := creds.Get(context.Background(), "ivanov")
	if err != nil {
		t.Fatalf("Get учётных данных ошибка: %v", err)
	}
	if bytes.Contains(stored.EncryptedPassword, []byte("secret")) {
		t.Error("пароль сохранён в открытом виде")
	}

	if _, err := svc.Session("petrov"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Session для чужого пользователя = %v, ожидался ErrNoSession", err)
	}
}

// TestSessionService_Renew проверяет прозрачный повторный вход
// по сохранённым учётным данным.
func TestSessionService_Renew(t *testing.T) {
	key := testKey(t)
	creds := newMemCredRepo()
	logins := 0
	auth := &mockAuthenticator{
		authenticateFn: func(_ context.Context, username, password string) (model.Session, error) {
			if password != "secret" {
				return model.Session{}, errors.New("неверный пароль")
			}
			logins++
			return model.Session{User: username, LWSSOCookie: "lwsso-" + itoa(logins)}, nil
		},
	}
	svc := NewSessionService(auth, creds, key, slog.Default())

	if _, err := svc.Login(context.Background(), "ivanov", "secret"); err != nil {
		t.Fatalf("Login ошибка: %v", err)
	}

	renewed, err := svc.Renew(context.Background(), "ivanov")
	if err != nil {
		t.Fatalf("Renew ошибка: %v", err)
	}
	if renewed.LWSSOCookie != "lwsso-2" {
		t.Errorf("LWSSOCookie = %q, ожидался lwsso-2 (повторный вход)", renewed.LWSSOCookie)
	}

	// Renew без сохранённых учётных данных
	if _, err := svc.Renew(context.Background(), "petrov"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Renew без учётных данных = %v, ожидался ErrNoSession", err)
	}
}

// TestSessionService_Logout проверяет выход: сессия забывается,
// учётные данные остаются для повторного входа.
func TestSessionService_Logout(t *testing.T) {
	key := testKey(t)
	creds := newMemCredRepo()
	svc := NewSessionService(&mockAuthenticator{}, creds, key, slog.Default())

	if _, err := svc.Login(context.Background(), "ivanov", "secret"); err != nil {
		t.Fatalf("Login ошибка: %v", err)
	}
	if err := svc.Logout(context.Background(), "ivanov"); err != nil {
		t.Fatalf("Logout ошибка: %v", err)
	}

	if _, err := svc.Session("ivanov"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Session после Logout = %v, ожидался ErrNoSession", err)
	}
	if _, err := creds.Get(context.Background(), "ivanov"); err != nil {
		t.Errorf("учётные данные удалены при Logout: %v", err)
	}

	// Повторный Logout без сессии
	if err := svc.Logout(context.Background(), "ivanov"); !errors.Is(err, ErrNoSession) {
		t.Errorf("повторный Logout = %v, ожидался ErrNoSession", err)
	}
}
