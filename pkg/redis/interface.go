// Package redis: key/value хранилище с TTL поверх go-redis.
package redis

import "context"

// Storage описывает контракт key/value хранилища.
type Storage interface {
	// Get возвращает значение по ключу или ErrNotFound, если его нет.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set сохраняет значение по ключу с TTL из конфига.
	Set(ctx context.Context, key string, value []byte) error
	// Delete удаляет ключ.
	Delete(ctx context.Context, key string) error
	// Ping проверяет соединение.
	Ping(ctx context.Context) error
	// Close закрывает клиент и освобождает ресурсы.
	Close() error
}
