// Package inventory reads the resources that already exist in the GCP
// project. It backs the side dashboard and is never on the pipeline's path.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/oauth2/google"

	"github.com/KaranKendre11/VibeOPS/internal/config"
	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/metrics"
)

const (
	SourceStorage = "storage"
	SourceCompute = "compute"

	computeScope = "https://www.googleapis.com/auth/compute.readonly"
)

// BucketLister is the part of *minio.Client the reader uses.
type BucketLister interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
}

// Reader lists storage buckets and compute instances. A source that is
// not configured or fails contributes an empty list.
type Reader struct {
	projectID string
	region    string

	buckets         BucketLister
	httpClient      *http.Client
	computeEndpoint string

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Reader)

func WithBucketLister(b BucketLister) Option {
	return func(r *Reader) { r.buckets = b }
}

// WithHTTPClient sets the authorized client used for the Compute API.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Reader) { r.httpClient = c }
}

func WithComputeEndpoint(endpoint string) Option {
	return func(r *Reader) { r.computeEndpoint = strings.TrimSuffix(endpoint, "/") }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reader) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reader) { r.now = now }
}

// NewReader builds a reader with explicit sources only.
func NewReader(projectID, region string, opts ...Option) *Reader {
	r := &Reader{
		projectID:       projectID,
		region:          region,
		computeEndpoint: "https://compute.googleapis.com/compute/v1",
		logger:          slog.New(slog.DiscardHandler),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// New builds a reader from configuration. Buckets are listed through the
// GCS XML interoperability endpoint with HMAC keys; instances through the
// Compute REST API with application default credentials. Missing
// credentials disable the affected source instead of failing.
func New(ctx context.Context, cfg config.InventoryConfig, gcp config.GCPConfig, logger *slog.Logger, m *metrics.Metrics) (*Reader, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts := []Option{
		WithComputeEndpoint(cfg.ComputeEndpoint),
		WithLogger(logger),
		WithMetrics(m),
	}
	if !cfg.Enabled {
		return NewReader(gcp.ProjectID, gcp.Region, opts...), nil
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		mc, err := minio.New(cfg.StorageEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: true,
		})
		if err != nil {
			return nil, fmt.Errorf("storage client: %w", err)
		}
		opts = append(opts, WithBucketLister(mc))
	} else {
		logger.Warn("inventory: no HMAC keys configured, bucket listing disabled")
	}

	if gcp.ProjectID != "" {
		hc, err := google.DefaultClient(ctx, computeScope)
		if err != nil {
			logger.Warn("inventory: no default credentials, instance listing disabled", slog.String("error", err.Error()))
		} else {
			opts = append(opts, WithHTTPClient(hc))
		}
	}

	return NewReader(gcp.ProjectID, gcp.Region, opts...), nil
}

// ListResources queries both sources concurrently.
func (r *Reader) ListResources(ctx context.Context) (*domain.InventorySnapshot, error) {
	snap := &domain.InventorySnapshot{
		ComputeInstances: []domain.ComputeInstance{},
		StorageBuckets:   []domain.StorageBucket{},
		ProjectID:        r.projectID,
		Region:           r.region,
		LastRefresh:      r.now().UTC(),
	}

	var wg sync.WaitGroup
	if r.buckets != nil {
		wg.Go(func() {
			buckets, err := r.listBuckets(ctx)
			r.record(SourceStorage, err)
			if err == nil {
				snap.StorageBuckets = buckets
			}
		})
	}
	if r.httpClient != nil && r.projectID != "" {
		wg.Go(func() {
			instances, err := r.listInstances(ctx)
			r.record(SourceCompute, err)
			if err == nil {
				snap.ComputeInstances = instances
			}
		})
	}
	wg.Wait()

	return snap, nil
}

func (r *Reader) record(source string, err error) {
	r.metrics.RecordInventory(source, err)
	if err != nil {
		r.logger.Error("inventory source failed",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Reader) listBuckets(ctx context.Context) ([]domain.StorageBucket, error) {
	infos, err := r.buckets.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	out := make([]domain.StorageBucket, 0, len(infos))
	for _, b := range infos {
		out = append(out, domain.StorageBucket{Name: b.Name, CreatedAt: b.CreationDate})
	}
	return out, nil
}

type aggregatedInstances struct {
	Items map[string]struct {
		Instances []struct {
			Name        string            `json:"name"`
			Zone        string            `json:"zone"`
			MachineType string            `json:"machineType"`
			Status      string            `json:"status"`
			Labels      map[string]string `json:"labels"`
		} `json:"instances"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

func (r *Reader) listInstances(ctx context.Context) ([]domain.ComputeInstance, error) {
	var out []domain.ComputeInstance
	pageToken := ""
	for {
		page, err := r.instancePage(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		for _, scope := range page.Items {
			for _, in := range scope.Instances {
				out = append(out, domain.ComputeInstance{
					Name:        in.Name,
					Zone:        path.Base(in.Zone),
					MachineType: path.Base(in.MachineType),
					Status:      in.Status,
					Labels:      in.Labels,
				})
			}
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Zone != out[j].Zone {
			return out[i].Zone < out[j].Zone
		}
		return out[i].Name < out[j].Name
	})
	if out == nil {
		out = []domain.ComputeInstance{}
	}
	return out, nil
}

func (r *Reader) instancePage(ctx context.Context, pageToken string) (*aggregatedInstances, error) {
	url := fmt.Sprintf("%s/projects/%s/aggregated/instances", r.computeEndpoint, r.projectID)
	if pageToken != "" {
		url += "?pageToken=" + pageToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list instances: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page aggregatedInstances
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &page, nil
}

var _ ports.Inventory = (*Reader)(nil)
