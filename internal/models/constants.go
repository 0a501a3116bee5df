package models

const (
	RideStatusActive = "active"

	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// MaxSeatsOffered верхняя граница мест в одной поездке
const MaxSeatsOffered = 8

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

const (
	// DefaultGeoCacheTTL время жизни кэша геокодера в секундах
	DefaultGeoCacheTTL = 24 * 60 * 60

	// DefaultTokenTTL время жизни access токена в секундах
	DefaultTokenTTL = 24 * 60 * 60

	// GeoSearchLimit количество кандидатов в ответе геокодера
	GeoSearchLimit = 5

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// RateLimitRequests количество запросов в окне на одного клиента
	RateLimitRequests = 60

	// RateLimitWindow окно ограничения частоты запросов
	RateLimitWindow = 60 // 1 минута в секундах
)
