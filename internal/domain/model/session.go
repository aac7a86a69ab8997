package model

import "time"

// Session — аутентифицированная сессия ALM.
// Передаётся явным значением во все вызовы клиента ALM:
// глобального состояния сессии нет.
type Session struct {
	// User — логин пользователя ALM
	User string
	// LWSSOCookie — значение cookie LWSSO_COOKIE_KEY
	LWSSOCookie string
	// QCSessionCookie — значение cookie QCSession
	QCSessionCookie string
	// ALMUserCookie — значение cookie ALM_USER
	ALMUserCookie string
	// XSRFToken — значение cookie XSRF-TOKEN
	XSRFToken string
	// CreatedAt — время создания сессии
	CreatedAt time.Time
}

// Scope — область извлечения: домен и проект ALM.
type Scope struct {
	// Domain — домен ALM (например, DEFAULT)
	Domain string
	// Project — проект ALM
	Project string
}

// Credential — сохранённые учётные данные ALM.
// Хранится в таблице alm_credentials, пароль зашифрован AES-256-GCM.
type Credential struct {
	// OwnerUser — логин пользователя ALM
	OwnerUser string
	// EncryptedPassword — nonce + шифротекст пароля
	EncryptedPassword []byte
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
