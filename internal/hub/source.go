// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hub downloads pretrained model artifacts into a local cache that
// survives restarts. Artifacts come from an HTTP model hub or an S3-compatible mirror.
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/translateLocal/internal/config"
	"github.com/traylinx/translateLocal/internal/util"
)

const userAgent = "translateLocal/1.0 (artifact-fetcher)"

// ErrArtifactNotFound is returned when a source has no such file for a model.
var ErrArtifactNotFound = errors.New("hub: artifact not found")

// Source opens a single artifact file of a model.
type Source interface {
	Name() string
	Open(ctx context.Context, modelID, file string) (io.ReadCloser, error)
}

// HTTPSource reads artifacts from a Hugging Face compatible hub:
// {endpoint}/{model_id}/resolve/{revision}/{file}.
type HTTPSource struct {
	endpoint string
	revision string
	client   *resty.Client
}

// NewHTTPSource creates a hub source. An empty token sends no Authorization header.
func NewHTTPSource(endpoint, revision, token string) *HTTPSource {
	if revision == "" {
		revision = "main"
	}
	client := resty.New().
		SetTimeout(30*time.Minute).
		SetHeader("User-Agent", userAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPSource{
		endpoint: strings.TrimRight(endpoint, "/"),
		revision: revision,
		client:   client,
	}
}

// Name implements Source.
func (s *HTTPSource) Name() string { return "hub" }

// URL returns the download location of file for modelID.
func (s *HTTPSource) URL(modelID, file string) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", s.endpoint, strings.Trim(modelID, "/"), url.PathEscape(s.revision), file)
}

// Open implements Source. The caller must close the returned body.
func (s *HTTPSource) Open(ctx context.Context, modelID, file string) (io.ReadCloser, error) {
	target := s.URL(modelID, file)
	resp, err := s.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(target)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", target, err)
	}

	body := resp.RawBody()
	if resp.StatusCode() == http.StatusNotFound {
		_ = body.Close()
		return nil, fmt.Errorf("%s %s: %w", modelID, file, ErrArtifactNotFound)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		_ = body.Close()
		return nil, fmt.Errorf("download %s: status %d: %s", target, resp.StatusCode(), strings.TrimSpace(string(snippet)))
	}
	return body, nil
}

// S3Source reads artifacts from an S3-compatible bucket at <prefix>/<model_id>/<file>.
type S3Source struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Source connects to the mirror described by cfg.
func NewS3Source(cfg config.S3Config) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("hub: s3 bucket is required")
	}
	endpoint, useSSL, err := config.ParseObjectStoreEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(cfg.Endpoint, "://") {
		useSSL = cfg.UseSSL
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       useSSL,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("hub: create object store client: %w", err)
	}
	log.Debugf("s3 source: endpoint=%s bucket=%s ssl=%t access_key=%s", endpoint, cfg.Bucket, useSSL, util.HideAPIKey(cfg.AccessKey))
	return &S3Source{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// Name implements Source.
func (s *S3Source) Name() string { return "s3" }

// Key returns the object key of file for modelID.
func (s *S3Source) Key(modelID, file string) string {
	key := path.Join(strings.Trim(modelID, "/"), file)
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}
	return key
}

// Open implements Source.
func (s *S3Source) Open(ctx context.Context, modelID, file string) (io.ReadCloser, error) {
	key := s.Key(modelID, file)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", s.bucket, key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before any bytes are copied.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%s %s: %w", modelID, file, ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("stat object %s/%s: %w", s.bucket, key, err)
	}
	return obj, nil
}

// NewSource builds the source selected by cfg.Hub.Source.
func NewSource(cfg *config.Config) (Source, error) {
	switch cfg.Hub.Source {
	case config.SourceS3:
		return NewS3Source(cfg.Hub.S3)
	case config.SourceHub, "":
		return NewHTTPSource(cfg.HubEndpoint(), cfg.Hub.Revision, cfg.Hub.Token), nil
	default:
		return nil, fmt.Errorf("hub: unknown source %q", cfg.Hub.Source)
	}
}
