// Package ledger реализует журнал покупок: создание намерения покупки и его
// однократный перевод в конечный статус.
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/course-checkout/internal/model"
)

// Store описывает хранилище, в котором журнал держит покупки и читает каталог.
type Store interface {
	GetCourse(ctx context.Context, id int64) (*model.Course, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	CreatePurchase(ctx context.Context, p model.Purchase) (*model.Purchase, error)
	GetPurchase(ctx context.Context, id string) (*model.Purchase, error)
	TransitionPurchase(ctx context.Context, id string, to model.PurchaseStatus) (applied, found bool, err error)
}

// Ledger ведёт журнал покупок.
type Ledger struct {
	store Store
}

// New создаёт журнал поверх хранилища.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

var hundred = decimal.NewFromInt(100)

// ComputeAmount вычисляет сумму к оплате в минимальных единицах валюты:
// price - price*discount/100 с округлением до целого.
func ComputeAmount(price int64, discount int) int64 {
	p := decimal.NewFromInt(price)
	off := p.Mul(decimal.NewFromInt(int64(discount))).Div(hundred)
	return p.Sub(off).Round(0).IntPart()
}

// Create создаёт покупку курса пользователем в статусе pending.
// Сумма фиксируется по цене и скидке курса на момент создания.
func (l *Ledger) Create(ctx context.Context, courseID, userID int64) (*model.Purchase, error) {
	course, err := l.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	if _, err := l.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	if course.Discount < 0 || course.Discount > 100 {
		return nil, fmt.Errorf("course %d has invalid discount %d", course.ID, course.Discount)
	}

	return l.store.CreatePurchase(ctx, model.Purchase{
		CourseID:    course.ID,
		UserID:      userID,
		CourseTitle: course.Title,
		Amount:      ComputeAmount(course.Price, course.Discount),
	})
}

// FindByID возвращает покупку по идентификатору.
func (l *Ledger) FindByID(ctx context.Context, id string) (*model.Purchase, error) {
	return l.store.GetPurchase(ctx, id)
}

// MarkTerminal переводит покупку в конечный статус.
// Если покупка уже в конечном статусе, вызов ничего не меняет и возвращает applied=false без ошибки.
// ErrConflict возвращается только для несуществующей покупки.
func (l *Ledger) MarkTerminal(ctx context.Context, id string, outcome model.PurchaseStatus) (bool, error) {
	if !outcome.IsTerminal() {
		return false, fmt.Errorf("status %q is not terminal", outcome)
	}

	applied, found, err := l.store.TransitionPurchase(ctx, id, outcome)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("%w: purchase %s does not exist", model.ErrConflict, id)
	}

	return applied, nil
}
