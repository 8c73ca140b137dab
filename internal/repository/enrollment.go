package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/course-checkout/internal/model"
)

// GetCourse возвращает курс каталога вместе со списком записанных студентов.
func (r *PostgresRepository) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	var c model.Course
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, price, discount, enrolled_students FROM courses WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Title, &c.Price, &c.Discount, &c.EnrolledStudents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: course %d", model.ErrNotFound, id)
		}
		return nil, storeError("get course", err)
	}
	return &c, nil
}

// GetUser возвращает пользователя вместе со списком курсов, на которые он записан.
func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, enrolled_courses FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.EnrolledCourses)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %d", model.ErrNotFound, id)
		}
		return nil, storeError("get user", err)
	}
	return &u, nil
}

// AddCourseToUser добавляет курс в список курсов пользователя, если его там ещё нет.
// Возвращает true, если список изменился.
func (r *PostgresRepository) AddCourseToUser(ctx context.Context, userID, courseID int64) (bool, error) {
	return r.appendUnique(ctx, "add course to user",
		`WITH upd AS (
			UPDATE users
			   SET enrolled_courses = array_append(enrolled_courses, $2::bigint)
			 WHERE id = $1 AND NOT ($2::bigint = ANY (enrolled_courses))
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM upd),
		       EXISTS (SELECT 1 FROM users WHERE id = $1)`,
		userID, courseID, "user",
	)
}

// AddStudentToCourse добавляет пользователя в список студентов курса, если его там ещё нет.
// Возвращает true, если список изменился.
func (r *PostgresRepository) AddStudentToCourse(ctx context.Context, courseID, userID int64) (bool, error) {
	return r.appendUnique(ctx, "add student to course",
		`WITH upd AS (
			UPDATE courses
			   SET enrolled_students = array_append(enrolled_students, $2::bigint)
			 WHERE id = $1 AND NOT ($2::bigint = ANY (enrolled_students))
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM upd),
		       EXISTS (SELECT 1 FROM courses WHERE id = $1)`,
		courseID, userID, "course",
	)
}

func (r *PostgresRepository) appendUnique(ctx context.Context, op, query string, ownerID, value int64, owner string) (bool, error) {
	var added, found bool
	if err := r.pool.QueryRow(ctx, query, ownerID, value).Scan(&added, &found); err != nil {
		return false, storeError(op, err)
	}
	if !found {
		return false, fmt.Errorf("%s: %w: %s %d", op, model.ErrNotFound, owner, ownerID)
	}
	return added, nil
}

// GetEnrolledCourses возвращает курсы, на которые записан пользователь.
func (r *PostgresRepository) GetEnrolledCourses(ctx context.Context, userID int64) ([]model.Course, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.title, c.price, c.discount
		 FROM users u
		 JOIN courses c ON c.id = ANY (u.enrolled_courses)
		 WHERE u.id = $1
		 ORDER BY c.id`,
		userID,
	)
	if err != nil {
		return nil, storeError("select enrolled courses", err)
	}
	defer rows.Close()

	var res []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.Title, &c.Price, &c.Discount); err != nil {
			return nil, storeError("scan course", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("rows error", err)
	}

	return res, nil
}
