// Package testutil содержит вспомогательные средства для тестов пакетов сервиса.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/course-checkout/internal/model"
)

// MemStore реализует потокобезопасное хранилище в памяти с той же семантикой условных
// обновлений, что и у PostgresRepository.
type MemStore struct {
	mu        sync.Mutex
	users     map[int64]*model.User
	courses   map[int64]*model.Course
	purchases map[string]*model.Purchase
	failures  map[string][]error
	calls     map[string]int
	now       func() time.Time
}

// NewMemStore создаёт пустое хранилище.
func NewMemStore() *MemStore {
	return &MemStore{
		users:     make(map[int64]*model.User),
		courses:   make(map[int64]*model.Course),
		purchases: make(map[string]*model.Purchase),
		failures:  make(map[string][]error),
		calls:     make(map[string]int),
		now:       time.Now,
	}
}

// Close ничего не делает.
func (s *MemStore) Close() error { return nil }

// AddUser добавляет пользователя.
func (s *MemStore) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

// AddCourse добавляет курс.
func (s *MemStore) AddCourse(c model.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = &c
}

// SetCoursePrice меняет цену и скидку курса.
func (s *MemStore) SetCoursePrice(id, price int64, discount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[id].Price = price
	s.courses[id].Discount = discount
}

// PutPurchase сохраняет покупку как есть.
func (s *MemStore) PutPurchase(p model.Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases[p.ID] = &p
}

// FailNext заставляет следующий вызов операции op вернуть err.
func (s *MemStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// Calls возвращает количество вызовов операции op.
func (s *MemStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// User возвращает копию пользователя.
func (s *MemStore) User(id int64) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *s.users[id]
	u.EnrolledCourses = slices.Clone(u.EnrolledCourses)
	return u
}

// Course возвращает копию курса.
func (s *MemStore) Course(id int64) model.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.courses[id]
	c.EnrolledStudents = slices.Clone(c.EnrolledStudents)
	return c
}

// Purchase возвращает копию покупки.
func (s *MemStore) Purchase(id string) model.Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.purchases[id]
}

// enter фиксирует вызов и возвращает запланированную ошибку. Вызывается под мьютексом.
func (s *MemStore) enter(op string) error {
	s.calls[op]++
	queue := s.failures[op]
	if len(queue) == 0 {
		return nil
	}
	s.failures[op] = queue[1:]
	return queue[0]
}

func (s *MemStore) GetCourse(_ context.Context, id int64) (*model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetCourse"); err != nil {
		return nil, err
	}
	c, ok := s.courses[id]
	if !ok {
		return nil, fmt.Errorf("%w: course %d", model.ErrNotFound, id)
	}
	res := *c
	res.EnrolledStudents = slices.Clone(c.EnrolledStudents)
	return &res, nil
}

func (s *MemStore) GetUser(_ context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetUser"); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", model.ErrNotFound, id)
	}
	res := *u
	res.EnrolledCourses = slices.Clone(u.EnrolledCourses)
	return &res, nil
}

func (s *MemStore) CreatePurchase(_ context.Context, p model.Purchase) (*model.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreatePurchase"); err != nil {
		return nil, err
	}
	p.ID = uuid.NewString()
	p.Status = model.PurchaseStatusPending
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	stored := p
	s.purchases[p.ID] = &stored
	return &p, nil
}

func (s *MemStore) GetPurchase(_ context.Context, id string) (*model.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetPurchase"); err != nil {
		return nil, err
	}
	p, ok := s.purchases[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase %s", model.ErrNotFound, id)
	}
	res := *p
	return &res, nil
}

func (s *MemStore) TransitionPurchase(_ context.Context, id string, to model.PurchaseStatus) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("TransitionPurchase"); err != nil {
		return false, false, err
	}
	p, ok := s.purchases[id]
	if !ok {
		return false, false, nil
	}
	if p.Status != model.PurchaseStatusPending {
		return false, true, nil
	}
	p.Status = to
	p.UpdatedAt = s.now()
	return true, true, nil
}

func (s *MemStore) AddCourseToUser(_ context.Context, userID, courseID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("AddCourseToUser"); err != nil {
		return false, err
	}
	u, ok := s.users[userID]
	if !ok {
		return false, fmt.Errorf("%w: user %d", model.ErrNotFound, userID)
	}
	if slices.Contains(u.EnrolledCourses, courseID) {
		return false, nil
	}
	u.EnrolledCourses = append(u.EnrolledCourses, courseID)
	return true, nil
}

func (s *MemStore) AddStudentToCourse(_ context.Context, courseID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("AddStudentToCourse"); err != nil {
		return false, err
	}
	c, ok := s.courses[courseID]
	if !ok {
		return false, fmt.Errorf("%w: course %d", model.ErrNotFound, courseID)
	}
	if slices.Contains(c.EnrolledStudents, userID) {
		return false, nil
	}
	c.EnrolledStudents = append(c.EnrolledStudents, userID)
	return true, nil
}

func (s *MemStore) GetEnrolledCourses(_ context.Context, userID int64) ([]model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetEnrolledCourses"); err != nil {
		return nil, err
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	var res []model.Course
	for _, id := range u.EnrolledCourses {
		if c, ok := s.courses[id]; ok {
			res = append(res, model.Course{ID: c.ID, Title: c.Title, Price: c.Price, Discount: c.Discount})
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemStore) ListStalePending(_ context.Context, olderThan time.Duration, limit int) ([]model.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListStalePending"); err != nil {
		return nil, err
	}
	res := s.stale(olderThan)
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *MemStore) CountStalePending(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CountStalePending"); err != nil {
		return 0, err
	}
	return int64(len(s.stale(olderThan))), nil
}

func (s *MemStore) stale(olderThan time.Duration) []model.Purchase {
	cutoff := s.now().Add(-olderThan)
	var res []model.Purchase
	for _, p := range s.purchases {
		if p.Status == model.PurchaseStatusPending && p.CreatedAt.Before(cutoff) {
			res = append(res, *p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res
}
