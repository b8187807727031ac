// Package inventory keeps the equipment catalog in step with the campus
// asset inventory.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/flplemos/senac-agenda-central/config"
	"github.com/flplemos/senac-agenda-central/internal/parse"
	"github.com/flplemos/senac-agenda-central/internal/store"
)

// ErrNoItems is returned when a sync fetched nothing usable.
var ErrNoItems = errors.New("inventory: no items retrieved")

// Service pulls the upstream inventory and writes it to the catalog.
type Service struct {
	cfg     config.InventoryConfig
	loc     *time.Location
	catalog store.Catalog
	client  *http.Client
	log     *zap.Logger
}

// NewService creates and initializes a new inventory sync service.
func NewService(cfg config.InventoryConfig, loc *time.Location, catalog store.Catalog, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn("invalid proxy URL, inventory sync will not use a proxy", zap.String("proxy", cfg.HTTPProxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	if cfg.Request.PageSize <= 0 {
		cfg.Request.PageSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}

	return &Service{
		cfg:     cfg,
		loc:     loc,
		catalog: catalog,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		log: log,
	}
}

// Run syncs once immediately and then on every interval until ctx ends.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("inventory sync is disabled")
		return
	}
	s.log.Info("starting inventory sync", zap.Duration("interval", s.cfg.Interval))

	s.syncAndLog(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("inventory sync shutting down")
			return
		case <-timer.C:
			s.syncAndLog(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) syncAndLog(ctx context.Context) {
	n, err := s.SyncOnce(ctx)
	if err != nil {
		s.log.Error("inventory sync failed", zap.Error(err))
		return
	}
	s.log.Info("inventory sync finished", zap.Int("written", n))
}

// SyncOnce fetches every page and upserts the result. A fetch failure after
// some pages still applies what was retrieved.
func (s *Service) SyncOnce(ctx context.Context) (int, error) {
	var allItems []store.InventoryItem
	total := 1
	pageSize := s.cfg.Request.PageSize
	var fetchErr error
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			s.log.Warn("error fetching inventory page", zap.Int("page", page), zap.Error(err))
			fetchErr = err
			break
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		allItems = append(allItems, resp.Data.Items...)
		s.log.Debug("fetched inventory page", zap.Int("page", page), zap.Int("items", len(allItems)), zap.Int("total", total))
	}

	if len(allItems) == 0 {
		if fetchErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrNoItems, fetchErr)
		}
		return 0, nil
	}

	for i := range allItems {
		parsed, err := parse.ParseTimestamp(allItems[i].LastMaintenance, s.loc)
		if err != nil {
			s.log.Warn("could not parse last_maintenance", zap.String("id", allItems[i].ID), zap.Error(err))
			continue
		}
		allItems[i].LastMaintenanceParsed = parsed
	}

	return s.catalog.UpsertInventory(ctx, allItems)
}

func (s *Service) fetchPage(ctx context.Context, page int) (*ApiResponse, error) {
	payload := make(map[string]any, len(s.cfg.Request.Payload)+2)
	for k, v := range s.cfg.Request.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.Request.PageSize

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Request.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp ApiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api response: %w", err)
	}
	if apiResp.Code != 0 {
		return nil, fmt.Errorf("API returned non-zero application code: %d", apiResp.Code)
	}
	return &apiResp, nil
}
