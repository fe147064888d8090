package sink

import (
	"context"
	"fmt"
	"sync"
)

// Constructor - функция-конструктор приемника
// Возвращает новый экземпляр приемника (еще не подключенный)
type Constructor func() Sink

// Factory - фабрика приемников
// Управляет регистрацией и созданием приемников различных типов
type Factory struct {
	registry map[string]Constructor
	mu       sync.RWMutex
}

// NewFactory создает новую фабрику приемников
func NewFactory() *Factory {
	return &Factory{
		registry: make(map[string]Constructor),
	}
}

// Register регистрирует конструктор приемника для типа СУБД
func (f *Factory) Register(sinkType string, constructor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry[sinkType] = constructor
}

// IsRegistered проверяет, зарегистрирован ли приемник данного типа
func (f *Factory) IsRegistered(sinkType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.registry[sinkType]
	return ok
}

// RegisteredTypes возвращает список всех зарегистрированных типов
func (f *Factory) RegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.registry))
	for sinkType := range f.registry {
		types = append(types, sinkType)
	}
	return types
}

// Create создает и подключает приемник по конфигурации
func (f *Factory) Create(ctx context.Context, cfg Config) (Sink, error) {
	f.mu.RLock()
	constructor, ok := f.registry[cfg.Type]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown sink type: %s (available types: %v)",
			cfg.Type, f.RegisteredTypes())
	}

	s := constructor()

	if err := s.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Type, err)
	}

	return s, nil
}

// ========== Global Factory ==========

var globalFactory = NewFactory()

// Register регистрирует приемник в глобальной фабрике
// Вызывается в init() функциях конкретных приемников
//
// Пример (в pkg/sink/postgres/postgres.go):
//
//	func init() {
//	    sink.Register("postgres", func() sink.Sink {
//	        return &Sink{}
//	    })
//	}
func Register(sinkType string, constructor Constructor) {
	globalFactory.Register(sinkType, constructor)
}

// IsRegistered проверяет регистрацию в глобальной фабрике
func IsRegistered(sinkType string) bool {
	return globalFactory.IsRegistered(sinkType)
}

// RegisteredTypes возвращает типы из глобальной фабрики
func RegisteredTypes() []string {
	return globalFactory.RegisteredTypes()
}

// New создает приемник через глобальную фабрику
// Основной способ создания приемников в приложении
//
// Пример:
//
//	s, err := sink.New(ctx, sink.Config{
//	    Type: "sqlite",
//	    DSN:  "file:cases.db",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close(ctx)
func New(ctx context.Context, cfg Config) (Sink, error) {
	return globalFactory.Create(ctx, cfg)
}
