package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stemforge/stemforge/internal/config"
	"github.com/stemforge/stemforge/internal/identity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

type directory struct {
	baseURL    string
	serviceKey string
	http       *http.Client
	log        *zap.Logger
}

func Provide(p Params) domain.Directory {
	return &directory{
		baseURL:    p.Config.Identity.BaseURL,
		serviceKey: p.Config.Identity.ServiceKey,
		http:       &http.Client{Timeout: 15 * time.Second},
		log:        p.Log.Named("identity.client"),
	}
}

type listUsersResponse struct {
	Users []domain.DirectoryUser `json:"users"`
}

func (d *directory) ListUsers(ctx context.Context, page, perPage int) ([]domain.DirectoryUser, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 100
	}

	url := d.baseURL + "/auth/v1/admin/users?page=" + strconv.Itoa(page) + "&per_page=" + strconv.Itoa(perPage)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	d.authorize(req)

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrDirectoryRequest, resp.StatusCode)
	}

	var out listUsersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryRequest, err)
	}
	return out.Users, nil
}

func (d *directory) GetUser(ctx context.Context, id string) (*domain.DirectoryUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/auth/v1/admin/users/"+id, nil)
	if err != nil {
		return nil, err
	}
	d.authorize(req)

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryRequest, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, domain.ErrUnknownIdentity
	default:
		return nil, fmt.Errorf("%w: status %d", domain.ErrDirectoryRequest, resp.StatusCode)
	}

	var user domain.DirectoryUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryRequest, err)
	}
	return &user, nil
}

func (d *directory) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+d.serviceKey)
	req.Header.Set("apikey", d.serviceKey)
}
