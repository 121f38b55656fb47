package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobState — состояние задания передачи.
type JobState string

// Состояния задания.
const (
	JobPending    JobState = "PENDING"
	JobStarting   JobState = "STARTING"
	JobInProgress JobState = "IN_PROGRESS"
	JobRunning    JobState = "RUNNING"
	JobCompleted  JobState = "COMPLETED"
	JobFailed     JobState = "FAILED"
	JobCancelled  JobState = "CANCELLED"
)

var jobStates = map[JobState]bool{
	JobPending: true, JobStarting: true, JobInProgress: true, JobRunning: true,
	JobCompleted: true, JobFailed: true, JobCancelled: true,
}

// ParseJobState разбирает строку состояния (регистр не важен).
func ParseJobState(s string) (JobState, error) {
	st := JobState(strings.ToUpper(strings.TrimSpace(s)))
	if !jobStates[st] {
		return "", fmt.Errorf("неизвестное состояние задания %q", s)
	}
	return st, nil
}

// Terminal сообщает, является ли состояние конечным.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// UnmarshalJSON отклоняет неизвестные значения.
func (s *JobState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("состояние задания должно быть строкой: %w", err)
	}
	st, err := ParseJobState(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// TransferState — обновление состояния от агента.
type TransferState struct {
	// Percentage — прогресс 0–100
	Percentage float64 `json:"percentage"`
	// State — состояние задания
	State JobState `json:"state"`
	// UpdateTimeMillis — время обновления на стороне агента (unix ms)
	UpdateTimeMillis int64 `json:"updateTimeMils"`
	// Publisher — идентификатор отправителя (агента)
	Publisher string `json:"publisher,omitempty"`
	// Description — произвольное описание
	Description string `json:"description,omitempty"`
}

// transferStateWire — формат на проводе, включая альтернативные имена полей.
type transferStateWire struct {
	Percentage       *float64  `json:"percentage"`
	State            *JobState `json:"state"`
	Status           *JobState `json:"status"`
	UpdateTimeMils   *int64    `json:"updateTimeMils"`
	UpdateTimeMillis *int64    `json:"updateTimeMillis"`
	Publisher        string    `json:"publisher"`
	Description      string    `json:"description"`
}

// UnmarshalJSON принимает state/status и updateTimeMils/updateTimeMillis,
// требует наличие состояния и проверяет диапазон процента.
func (s *TransferState) UnmarshalJSON(data []byte) error {
	var w transferStateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch {
	case w.State != nil:
		s.State = *w.State
	case w.Status != nil:
		s.State = *w.Status
	default:
		return fmt.Errorf("отсутствует поле state")
	}

	s.Percentage = 0
	if w.Percentage != nil {
		s.Percentage = *w.Percentage
	}
	if s.Percentage < 0 || s.Percentage > 100 {
		return fmt.Errorf("percentage %v вне диапазона 0-100", s.Percentage)
	}

	s.UpdateTimeMillis = 0
	switch {
	case w.UpdateTimeMils != nil:
		s.UpdateTimeMillis = *w.UpdateTimeMils
	case w.UpdateTimeMillis != nil:
		s.UpdateTimeMillis = *w.UpdateTimeMillis
	}

	s.Publisher = w.Publisher
	s.Description = w.Description
	return nil
}

// TransferStatus — строка истории состояний передачи (только добавление).
type TransferStatus struct {
	// ID — порядковый номер строки
	ID int64 `json:"id"`
	// TransferID — передача, к которой относится строка
	TransferID string `json:"transferId"`
	// Percentage — прогресс 0–100
	Percentage float64 `json:"percentage"`
	// State — состояние задания
	State JobState `json:"state"`
	// UpdateTimeMillis — время обновления от агента (unix ms)
	UpdateTimeMillis int64 `json:"updateTimeMils"`
	// Publisher — отправитель
	Publisher string `json:"publisher,omitempty"`
	// Description — описание
	Description string `json:"description,omitempty"`
	// CreatedAt — время записи в журнал
	CreatedAt time.Time `json:"createdAt"`
}

// NewTransferStatus строит строку истории из обновления состояния.
func NewTransferStatus(transferID string, st *TransferState) *TransferStatus {
	return &TransferStatus{
		TransferID:       transferID,
		Percentage:       st.Percentage,
		State:            st.State,
		UpdateTimeMillis: st.UpdateTimeMillis,
		Publisher:        st.Publisher,
		Description:      st.Description,
	}
}
