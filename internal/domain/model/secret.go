package model

import (
	"encoding/json"
	"fmt"
)

// AuthToken — непрозрачный токен вызывающего, передаётся сервисам поиска как есть.
type AuthToken string

// Secret — разрешённые учётные данные. Payload содержит специфичную для бэкенда
// структуру (S3Secret, SCPSecret, ...).
type Secret struct {
	ID      string          `json:"secretId"`
	Type    StorageType     `json:"type,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeSecret разбирает payload секрета в типизированную структуру.
func DecodeSecret[T any](s *Secret) (*T, error) {
	var out T
	if len(s.Payload) == 0 {
		return nil, fmt.Errorf("секрет %s пуст", s.ID)
	}
	if err := json.Unmarshal(s.Payload, &out); err != nil {
		return nil, fmt.Errorf("некорректный секрет %s: %w", s.ID, err)
	}
	return &out, nil
}

// S3Secret — ключи доступа S3/MinIO. Непустой SessionToken означает сессионные ключи.
type S3Secret struct {
	AccessKey    string `json:"accessKey"`
	SecretKey    string `json:"secretKey"`
	SessionToken string `json:"sessionToken,omitempty"`
}

// IsSession сообщает, являются ли учётные данные сессионными.
func (s *S3Secret) IsSession() bool {
	return s.SessionToken != ""
}

// SCPSecret — учётные данные SSH.
type SCPSecret struct {
	User       string `json:"user"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
}

// FTPSecret — учётные данные FTP.
type FTPSecret struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// GCSSecret — JSON ключа сервисного аккаунта Google.
type GCSSecret struct {
	CredentialsJSON string `json:"credentialsJson"`
}

// AzureSecret — учётные данные Azure Storage.
type AzureSecret struct {
	AccountName      string `json:"accountName,omitempty"`
	AccountKey       string `json:"accountKey,omitempty"`
	ConnectionString string `json:"connectionString,omitempty"`
}

// DropboxSecret — OAuth токен Dropbox.
type DropboxSecret struct {
	AccessToken string `json:"accessToken"`
}
