// Package kafka задаёт контракт публикации в Kafka и его реализацию на
// Sarama; потребители зависят только от интерфейса.
package kafka

import "context"

// Producer публикует сообщения в Kafka.
type Producer interface {
	// Publish доставляет сообщение согласно RequiredAcks; внутри возможен
	// retry по стратегии back-off.
	Publish(ctx context.Context, topic string, key, value []byte) error
	// Ping проверяет достижимость кластера (обновление метаданных).
	Ping(ctx context.Context) error
	Close() error
}
