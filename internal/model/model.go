// Package model содержит доменные сущности сервиса продажи курсов.
package model

import "time"

// User представляет учётную запись пользователя и набор курсов, на которые он записан.
type User struct {
	ID              int64
	Name            string
	Email           string
	EnrolledCourses []int64
}

// Course описывает курс каталога. Цена хранится в минимальных единицах валюты.
type Course struct {
	ID               int64
	Title            string
	Price            int64
	Discount         int
	EnrolledStudents []int64
}

// PurchaseStatus описывает статус покупки.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
)

// IsTerminal сообщает, является ли статус конечным.
func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseStatusCompleted || s == PurchaseStatusFailed
}

// Purchase описывает одну попытку купить один курс.
type Purchase struct {
	ID          string
	CourseID    int64
	UserID      int64
	CourseTitle string
	Amount      int64
	Status      PurchaseStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
