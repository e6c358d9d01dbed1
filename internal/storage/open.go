package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/TobiSchelling/briefcast/internal/config"
)

// Open returns the audio and text stores for the configured backend.
// The file backend serves both from subdirectories of the storage dir.
func Open(cfg *config.Config) (audio, text Store, err error) {
	s := cfg.Storage
	if strings.ToLower(s.Backend) == "s3" {
		opts := S3Options{
			Endpoint:        s.Endpoint,
			Region:          s.Region,
			AccessKeyID:     cfg.Secrets.OSSAccessKeyID,
			SecretAccessKey: cfg.Secrets.OSSAccessKeySecret,
			Secure:          s.Secure,
		}
		if opts.AccessKeyID == "" || opts.SecretAccessKey == "" {
			return nil, nil, fmt.Errorf("OSS_ACCESS_KEY_ID and OSS_ACCESS_KEY_SECRET must be set for the s3 backend")
		}

		ao := opts
		ao.Bucket, ao.PublicURL = s.AudioBucket, s.AudioPublicURL
		a, err := NewS3Store(ao)
		if err != nil {
			return nil, nil, fmt.Errorf("audio bucket: %w", err)
		}

		to := opts
		to.Bucket, to.PublicURL = s.TextBucket, s.TextPublicURL
		t, err := NewS3Store(to)
		if err != nil {
			return nil, nil, fmt.Errorf("text bucket: %w", err)
		}
		return a, t, nil
	}

	root := cfg.GetStorageDir()
	a, err := NewFileStore(filepath.Join(root, "audio"), s.AudioPublicURL)
	if err != nil {
		return nil, nil, err
	}
	t, err := NewFileStore(filepath.Join(root, "text"), s.TextPublicURL)
	if err != nil {
		return nil, nil, err
	}
	return a, t, nil
}
