package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// StorageType — тег типа бэкенда хранения.
type StorageType string

// Поддерживаемые типы бэкендов.
const (
	StorageS3      StorageType = "S3"
	StorageMinIO   StorageType = "MINIO"
	StorageSCP     StorageType = "SCP"
	StorageFTP     StorageType = "FTP"
	StorageLocal   StorageType = "LOCAL"
	StorageGCS     StorageType = "GCS"
	StorageAzure   StorageType = "AZURE"
	StorageDropbox StorageType = "DROPBOX"
)

// StorageTypes — все известные типы в фиксированном порядке.
var StorageTypes = []StorageType{
	StorageS3, StorageMinIO, StorageSCP, StorageFTP,
	StorageLocal, StorageGCS, StorageAzure, StorageDropbox,
}

// ParseStorageType нормализует строковый тег (регистр не важен).
// Неизвестный тег возвращается как есть: решение о поддержке принимает Resolver.
func ParseStorageType(s string) StorageType {
	return StorageType(strings.ToUpper(strings.TrimSpace(s)))
}

// Endpoint — одна сторона передачи (источник или получатель).
type Endpoint struct {
	// ResourceID — идентификатор ресурса в реестре ресурсов
	ResourceID string `json:"resourceId"`
	// Token — токен учётных данных в хранилище секретов
	Token string `json:"token"`
	// Type — тип бэкенда хранения
	Type StorageType `json:"type"`
	// ResourceBackend — какой экземпляр реестра ресурсов опрашивать
	ResourceBackend string `json:"resourceBackend"`
	// CredentialBackend — какой экземпляр хранилища секретов опрашивать
	CredentialBackend string `json:"credentialBackend"`
}

// TransferRequest — запрос клиента на передачу, помещённый в координационное хранилище.
// Не сохраняется, потребляется ровно один раз.
type TransferRequest struct {
	SourceID                string            `json:"sourceId"`
	SourceToken             string            `json:"sourceToken"`
	SourceType              StorageType       `json:"sourceType"`
	SourceResourceBackend   string            `json:"sourceResourceBackend"`
	SourceCredentialBackend string            `json:"sourceCredentialBackend"`
	DestinationID           string            `json:"destinationId"`
	DestinationToken        string            `json:"destinationToken"`
	DestinationType         StorageType       `json:"destinationType"`
	DestResourceBackend     string            `json:"destResourceBackend"`
	DestCredentialBackend   string            `json:"destCredentialBackend"`
	AffinityTransfer        bool              `json:"affinityTransfer"`
	TargetAgents            map[string]string `json:"targetAgents,omitempty"`
}

// Source возвращает описание источника.
func (r *TransferRequest) Source() Endpoint {
	return Endpoint{
		ResourceID:        r.SourceID,
		Token:             r.SourceToken,
		Type:              r.SourceType,
		ResourceBackend:   r.SourceResourceBackend,
		CredentialBackend: r.SourceCredentialBackend,
	}
}

// Destination возвращает описание получателя.
func (r *TransferRequest) Destination() Endpoint {
	return Endpoint{
		ResourceID:        r.DestinationID,
		Token:             r.DestinationToken,
		Type:              r.DestinationType,
		ResourceBackend:   r.DestResourceBackend,
		CredentialBackend: r.DestCredentialBackend,
	}
}

// Validate проверяет обязательные поля запроса (используется Transfer API).
func (r *TransferRequest) Validate() error {
	var errs []error
	if r.SourceID == "" {
		errs = append(errs, errors.New("sourceId обязателен"))
	}
	if r.DestinationID == "" {
		errs = append(errs, errors.New("destinationId обязателен"))
	}
	if r.SourceType == "" {
		errs = append(errs, errors.New("sourceType обязателен"))
	}
	if r.DestinationType == "" {
		errs = append(errs, errors.New("destinationType обязателен"))
	}
	return errors.Join(errs...)
}

// Transfer — запись о передаче в журнале. Создаётся один раз, не изменяется.
type Transfer struct {
	// ID — идентификатор передачи (последний сегмент ключа запроса)
	ID string `json:"transferId"`
	// Source — описание источника
	Source Endpoint `json:"source"`
	// Destination — описание получателя
	Destination Endpoint `json:"destination"`
	// AffinityTransfer — передача должна выполняться на закреплённом агенте
	AffinityTransfer bool `json:"affinityTransfer"`
	// TargetAgents — целевые агенты (id → ограничение)
	TargetAgents map[string]string `json:"targetAgents,omitempty"`
	// CreatedAt — время приёма запроса
	CreatedAt time.Time `json:"createdAt"`
}

// NewTransfer создаёт запись о передаче из запроса.
func NewTransfer(id string, req *TransferRequest, now time.Time) *Transfer {
	var targets map[string]string
	if len(req.TargetAgents) > 0 {
		targets = make(map[string]string, len(req.TargetAgents))
		for k, v := range req.TargetAgents {
			targets[k] = v
		}
	}
	return &Transfer{
		ID:               id,
		Source:           req.Source(),
		Destination:      req.Destination(),
		AffinityTransfer: req.AffinityTransfer,
		TargetAgents:     targets,
		CreatedAt:        now.UTC(),
	}
}

// TransferCommand — команда агенту на выполнение передачи.
// Формат совпадает с TransferRequest плюс transferId.
type TransferCommand struct {
	TransferID              string      `json:"transferId"`
	SourceID                string      `json:"sourceId"`
	SourceToken             string      `json:"sourceToken"`
	SourceType              StorageType `json:"sourceType"`
	SourceResourceBackend   string      `json:"sourceResourceBackend"`
	SourceCredentialBackend string      `json:"sourceCredentialBackend"`
	DestinationID           string      `json:"destinationId"`
	DestinationToken        string      `json:"destinationToken"`
	DestinationType         StorageType `json:"destinationType"`
	DestResourceBackend     string      `json:"destResourceBackend"`
	DestCredentialBackend   string      `json:"destCredentialBackend"`
}

// NewTransferCommand строит команду из сохранённой записи о передаче.
func NewTransferCommand(t *Transfer) *TransferCommand {
	return &TransferCommand{
		TransferID:              t.ID,
		SourceID:                t.Source.ResourceID,
		SourceToken:             t.Source.Token,
		SourceType:              t.Source.Type,
		SourceResourceBackend:   t.Source.ResourceBackend,
		SourceCredentialBackend: t.Source.CredentialBackend,
		DestinationID:           t.Destination.ResourceID,
		DestinationToken:        t.Destination.Token,
		DestinationType:         t.Destination.Type,
		DestResourceBackend:     t.Destination.ResourceBackend,
		DestCredentialBackend:   t.Destination.CredentialBackend,
	}
}

// String — краткое описание для логов (без токенов).
func (c *TransferCommand) String() string {
	return fmt.Sprintf("%s: %s:%s -> %s:%s",
		c.TransferID, c.SourceType, c.SourceID, c.DestinationType, c.DestinationID)
}
