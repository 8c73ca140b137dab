// Package enrollment связывает пользователя и курс после подтверждённой оплаты.
package enrollment

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Store описывает идемпотентные операции добавления в множества записей.
// Каждая операция должна быть атомарной сама по себе.
type Store interface {
	AddCourseToUser(ctx context.Context, userID, courseID int64) (bool, error)
	AddStudentToCourse(ctx context.Context, courseID, userID int64) (bool, error)
}

// Linker выполняет двустороннюю связку пользователь ↔ курс.
type Linker struct {
	store  Store
	logger *zap.Logger
}

// NewLinker создаёт Linker.
func NewLinker(store Store, logger *zap.Logger) *Linker {
	return &Linker{store: store, logger: logger}
}

// Link добавляет курс пользователю и пользователя курсу.
// Повторный вызов с теми же аргументами после частичного сбоя приводит к тому же состоянию.
func (l *Linker) Link(ctx context.Context, userID, courseID int64) error {
	studentAdded, err := l.store.AddStudentToCourse(ctx, courseID, userID)
	if err != nil {
		return fmt.Errorf("link course side: %w", err)
	}

	courseAdded, err := l.store.AddCourseToUser(ctx, userID, courseID)
	if err != nil {
		return fmt.Errorf("link user side: %w", err)
	}

	l.logger.Debug("enrollment linked",
		zap.Int64("userID", userID),
		zap.Int64("courseID", courseID),
		zap.Bool("studentAdded", studentAdded),
		zap.Bool("courseAdded", courseAdded),
	)

	return nil
}
