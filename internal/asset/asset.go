// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package asset manages local binary storage for the pipeline: uploaded style
references, downloaded generation results, and webp thumbnails.

Files live under a single root directory, one subdirectory per category.
Stored paths are always relative to the root so the root can move between
environments without rewriting rows.
*/
package asset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fablemint/storyforge/pkg/uuid"
)

// Storage categories.
const (
	CategoryStyleReferences = "style_references"
	CategoryGenerated       = "generated_images"
	CategoryThumbnails      = "thumbnails"
	CategoryExports         = "exports"
)

const downloadTimeout = 120 * time.Second

// maxAssetSize caps downloads and uploads at 50 MiB.
const maxAssetSize = 50 << 20

// Store is the local filesystem asset store.
type Store struct {
	root   string
	client *http.Client
}

// NewStore opens (and creates if needed) the storage root.
func NewStore(root string) (*Store, error) {
	for _, category := range []string{
		CategoryStyleReferences, CategoryGenerated, CategoryThumbnails, CategoryExports,
	} {
		if err := os.MkdirAll(filepath.Join(root, category), 0o755); err != nil {
			return nil, fmt.Errorf("asset: create storage dir: %w", err)
		}
	}

	return &Store{
		root:   root,
		client: &http.Client{Timeout: downloadTimeout},
	}, nil
}

// AbsPath resolves a stored relative path against the storage root.
func (store *Store) AbsPath(relPath string) string {
	return filepath.Join(store.root, filepath.FromSlash(relPath))
}

// SaveUpload persists an uploaded file and returns its relative path.
// The stored name is a fresh UUID; the original name only contributes its
// extension.
func (store *Store) SaveUpload(category, filename string, r io.Reader) (string, error) {
	relPath := filepath.ToSlash(filepath.Join(category, uuid.New()+safeExt(filename)))

	f, err := os.Create(store.AbsPath(relPath))
	if err != nil {
		return "", fmt.Errorf("asset: create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, io.LimitReader(r, maxAssetSize)); err != nil {
		return "", fmt.Errorf("asset: write file: %w", err)
	}

	return relPath, nil
}

// Download fetches a remote asset (a provider image URL) into the given
// category and returns its relative path.
func (store *Store) Download(ctx context.Context, category, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("asset: build download request: %w", err)
	}

	resp, err := store.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("asset: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("asset: download: unexpected status %d", resp.StatusCode)
	}

	return store.SaveUpload(category, urlFilename(url), resp.Body)
}

// Read returns the full contents of a stored asset.
func (store *Store) Read(relPath string) ([]byte, error) {
	data, err := os.ReadFile(store.AbsPath(relPath))
	if err != nil {
		return nil, fmt.Errorf("asset: read %s: %w", relPath, err)
	}
	return data, nil
}

// Remove deletes a stored asset. Missing files are not an error; deletion
// is already the desired end state.
func (store *Store) Remove(relPath string) error {
	err := os.Remove(store.AbsPath(relPath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("asset: remove %s: %w", relPath, err)
	}
	return nil
}

// Thumbnail renders a webp thumbnail of a stored image and returns the
// thumbnail's relative path. The name derives from the source file, so
// repeated calls reuse the existing thumbnail instead of re-encoding.
func (store *Store) Thumbnail(relPath string, maxEdge int) (string, error) {
	base := filepath.Base(relPath)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".webp"
	thumbPath := filepath.ToSlash(filepath.Join(CategoryThumbnails, name))

	if _, err := os.Stat(store.AbsPath(thumbPath)); err == nil {
		return thumbPath, nil
	}

	data, err := store.Read(relPath)
	if err != nil {
		return "", err
	}

	thumb, err := EncodeThumbnail(data, maxEdge)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(store.AbsPath(thumbPath), thumb, 0o644); err != nil {
		return "", fmt.Errorf("asset: write thumbnail: %w", err)
	}

	return thumbPath, nil
}

// safeExt extracts a usable file extension, defaulting to .png for the
// extension-less URLs some providers return.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp", ".gif", ".txt", ".xlsx":
		return ext
	}
	return ".png"
}

// urlFilename extracts the path component of a URL for extension sniffing.
func urlFilename(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	if i := strings.LastIndex(url, "/"); i >= 0 {
		url = url[i+1:]
	}
	return url
}
