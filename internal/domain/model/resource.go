package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ResourceKind — вид ресурса.
type ResourceKind string

const (
	KindFile      ResourceKind = "FILE"
	KindDirectory ResourceKind = "DIRECTORY"
)

// ParseResourceKind приводит вид ресурса к каноническому регистру.
func ParseResourceKind(s string) ResourceKind {
	return ResourceKind(strings.ToUpper(strings.TrimSpace(s)))
}

// Storage — описание хранилища из реестра ресурсов.
// Config содержит специфичную для бэкенда конфигурацию (S3Storage, SCPStorage, ...).
type Storage struct {
	ID     string          `json:"storageId"`
	Type   StorageType     `json:"type"`
	Name   string          `json:"name,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Resource — разрешённый ресурс: хранилище + путь внутри него.
type Resource struct {
	ID      string       `json:"resourceId"`
	Storage Storage      `json:"storage"`
	Kind    ResourceKind `json:"kind"`
	Path    string       `json:"path"`
}

// IsDirectory сообщает, указывает ли ресурс на каталог.
func (r *Resource) IsDirectory() bool {
	return r.Kind == KindDirectory
}

// DecodeStorageConfig разбирает конфигурацию хранилища в типизированную структуру.
func DecodeStorageConfig[T any](r *Resource) (*T, error) {
	var cfg T
	if len(r.Storage.Config) == 0 {
		return &cfg, nil
	}
	if err := json.Unmarshal(r.Storage.Config, &cfg); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация хранилища %s: %w", r.Storage.ID, err)
	}
	return &cfg, nil
}

// S3Storage — конфигурация S3.
type S3Storage struct {
	BucketName   string `json:"bucketName"`
	Endpoint     string `json:"endpoint,omitempty"`
	Region       string `json:"region"`
	UsePathStyle bool   `json:"usePathStyle,omitempty"`
}

// MinIOStorage — конфигурация MinIO.
type MinIOStorage struct {
	BucketName string `json:"bucketName"`
	Endpoint   string `json:"endpoint"`
	Region     string `json:"region,omitempty"`
	UseSSL     bool   `json:"useSSL,omitempty"`
}

// SCPStorage — конфигурация SCP/SFTP хоста.
type SCPStorage struct {
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`
}

// FTPStorage — конфигурация FTP сервера.
type FTPStorage struct {
	Host   string `json:"host"`
	Port   int    `json:"port,omitempty"`
	UseTLS bool   `json:"useTLS,omitempty"`
}

// LocalStorage — локальная ФС агента.
type LocalStorage struct {
	RootPath string `json:"rootPath,omitempty"`
}

// GCSStorage — Google Cloud Storage.
type GCSStorage struct {
	BucketName string `json:"bucketName"`
	ProjectID  string `json:"projectId,omitempty"`
}

// AzureStorage — Azure Blob Storage.
type AzureStorage struct {
	AccountName string `json:"accountName"`
	Container   string `json:"container"`
	Endpoint    string `json:"endpoint,omitempty"`
}

// DropboxStorage — Dropbox.
type DropboxStorage struct {
	RootPath string `json:"rootPath,omitempty"`
}

// FileMetadata — метаданные файла.
type FileMetadata struct {
	FriendlyName string    `json:"friendlyName"`
	ResourcePath string    `json:"resourcePath"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum,omitempty"`
	CreatedTime  time.Time `json:"createdTime"`
	UpdateTime   time.Time `json:"updateTime"`
}

// DirectoryMetadata — метаданные каталога.
type DirectoryMetadata struct {
	FriendlyName string              `json:"friendlyName"`
	ResourcePath string              `json:"resourcePath"`
	CreatedTime  time.Time           `json:"createdTime"`
	UpdateTime   time.Time           `json:"updateTime"`
	Files        []FileMetadata      `json:"files"`
	Directories  []DirectoryMetadata `json:"directories"`
}
