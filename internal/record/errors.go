package record

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind классифицирует ошибку хранилища для выбора реакции интерфейса:
// повторный вход, исправление данных или повтор запроса.
type ErrorKind string

const (
	// KindAuthentication — сессия недействительна, требуется повторный вход.
	KindAuthentication ErrorKind = "authentication"
	// KindValidation — сервер отклонил форму данных, повтор без исправления бесполезен.
	KindValidation ErrorKind = "validation"
	// KindConflict — операция противоречит состоянию анкеты (уже отправлена или уже существует).
	KindConflict ErrorKind = "conflict"
	// KindServer — временная ошибка сервера или сети, имеет смысл повторить.
	KindServer ErrorKind = "server"
)

// ErrSubmitted возвращается при попытке изменить или удалить отправленную анкету.
var ErrSubmitted = errors.New("record already submitted")

// StoreError — классифицированная ошибка хранилища.
type StoreError struct {
	Kind ErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store: %s: %v", e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewError оборачивает ошибку в StoreError с указанным классом.
func NewError(kind ErrorKind, err error) *StoreError {
	return &StoreError{Kind: kind, Err: err}
}

// KindOf возвращает класс ошибки хранилища; для прочих ошибок — KindServer.
func KindOf(err error) ErrorKind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindServer
}

func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuthentication
	case code == http.StatusConflict:
		return KindConflict
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity || code == http.StatusNotFound:
		return KindValidation
	default:
		return KindServer
	}
}
