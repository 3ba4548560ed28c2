package record

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stuhub/experience-system/internal/middleware"
	"github.com/stuhub/experience-system/internal/model"
)

// requestTimeout ограничивает время любого запроса к сервису анкет, чтобы
// зависший запрос превращался в повторяемую ошибку, а не в вечное ожидание.
const requestTimeout = 15 * time.Second

// RemoteStore инкапсулирует HTTP-взаимодействие с сервисом анкет.
type RemoteStore struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewRemoteStore создаёт HTTP-клиент сервиса анкет по указанному адресу.
// Токен авторизации передаётся в cookie в том же формате, который выдаёт сервис.
func NewRemoteStore(baseURL, authToken string) *RemoteStore {
	return &RemoteStore{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type wirePatch struct {
	model.Patch
	Action string `json:"action,omitempty"`
}

// FetchOrCreate возвращает анкету пользователя; при отсутствии прозрачно создаёт её.
func (s *RemoteStore) FetchOrCreate(ctx context.Context, userID int64) (*model.ExperienceRecord, error) {
	var list []*model.ExperienceRecord
	if err := s.do(ctx, http.MethodGet, "/api/user/experiences", nil, &list, http.StatusOK); err != nil {
		return nil, err
	}

	if len(list) > 0 {
		return list[0], nil
	}

	var rec model.ExperienceRecord
	err := s.do(ctx, http.MethodPost, "/api/user/experiences", nil, &rec, http.StatusCreated)
	if err != nil {
		// Конкурентное создание: анкета появилась между GET и POST
		if KindOf(err) == KindConflict {
			if err := s.do(ctx, http.MethodGet, "/api/user/experiences", nil, &list, http.StatusOK); err != nil {
				return nil, err
			}
			if len(list) > 0 {
				return list[0], nil
			}
		}
		return nil, err
	}

	return &rec, nil
}

// Update применяет патч разделов к анкете на сервере.
func (s *RemoteStore) Update(ctx context.Context, id string, patch model.Patch) (*model.ExperienceRecord, error) {
	return s.put(ctx, id, wirePatch{Patch: patch})
}

// Submit отправляет финальный патч с маркером action=submit.
func (s *RemoteStore) Submit(ctx context.Context, id string, patch model.Patch) (*model.ExperienceRecord, error) {
	return s.put(ctx, id, wirePatch{Patch: patch, Action: "submit"})
}

func (s *RemoteStore) put(ctx context.Context, id string, body wirePatch) (*model.ExperienceRecord, error) {
	var rec model.ExperienceRecord
	err := s.do(ctx, http.MethodPut, "/api/user/experiences/"+id, body, &rec, http.StatusOK)
	if err != nil {
		if KindOf(err) == KindConflict {
			return nil, NewError(KindConflict, ErrSubmitted)
		}
		return nil, err
	}
	return &rec, nil
}

// Delete удаляет черновик анкеты пользователя на сервере.
func (s *RemoteStore) Delete(ctx context.Context, userID int64) error {
	err := s.do(ctx, http.MethodDelete, "/api/user/experiences", nil, nil, http.StatusNoContent)
	if err != nil && KindOf(err) == KindConflict {
		return NewError(KindConflict, ErrSubmitted)
	}
	return err
}

func (s *RemoteStore) do(ctx context.Context, method, path string, body, out any, wantStatus int) error {
	if s == nil || s.baseURL == "" {
		return NewError(KindServer, fmt.Errorf("remote store not configured"))
	}

	base := s.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return NewError(KindValidation, fmt.Errorf("marshal request: %w", err))
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reqBody)
	if err != nil {
		return NewError(KindServer, fmt.Errorf("create request: %w", err))
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.authToken != "" {
		req.AddCookie(&http.Cookie{Name: middleware.AuthCookieName, Value: s.authToken})
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return NewError(KindServer, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return NewError(classifyStatus(resp.StatusCode),
			fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return NewError(KindServer, fmt.Errorf("decode response: %w", err))
		}
	}

	return nil
}
