// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — объект не найден.
	ErrNotFound = errors.New("объект не найден")
	// ErrConflict — объект уже существует.
	ErrConflict = errors.New("конфликт — объект уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")

	// ErrNoLiveAgents — нет ни одного живого агента.
	ErrNoLiveAgents = errors.New("нет живых агентов")
	// ErrNoEligibleAgent — ни один целевой агент не жив.
	ErrNoEligibleAgent = errors.New("ни один из целевых агентов не жив")
	// ErrAffinityWithoutTargets — affinityTransfer без целевых агентов.
	ErrAffinityWithoutTargets = errors.New("affinityTransfer задан без целевых агентов")
)
