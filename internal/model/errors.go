package model

import "errors"

var (
	// ErrNotFound возвращается, если курс, пользователь или покупка не существуют.
	ErrNotFound = errors.New("not found")
	// ErrInvalidSignature возвращается, если подпись события платёжного провайдера не прошла проверку.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrUnresolvable возвращается, если событие нельзя однозначно сопоставить покупке.
	ErrUnresolvable = errors.New("event cannot be resolved to a purchase")
	// ErrConflict возвращается при попытке перевести несуществующую покупку в конечный статус.
	ErrConflict = errors.New("conflict")
	// ErrTransient обозначает временную недоступность хранилища или сети.
	ErrTransient = errors.New("transient fault")
)
