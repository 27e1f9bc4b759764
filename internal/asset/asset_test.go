// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package asset_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablemint/storyforge/internal/asset"
)

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestStore_SaveUploadAndRead(t *testing.T) {
	store, err := asset.NewStore(t.TempDir())
	require.NoError(t, err)

	relPath, err := store.SaveUpload(asset.CategoryStyleReferences, "style.png", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(relPath, asset.CategoryStyleReferences+"/"))
	assert.True(t, strings.HasSuffix(relPath, ".png"))

	data, err := store.Read(relPath)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestStore_SaveUpload_UnknownExtensionDefaultsPNG(t *testing.T) {
	store, err := asset.NewStore(t.TempDir())
	require.NoError(t, err)

	relPath, err := store.SaveUpload(asset.CategoryGenerated, "image.exe", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(relPath, ".png"))
}

func TestStore_Remove_MissingIsNoError(t *testing.T) {
	store, err := asset.NewStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Remove("generated_images/nope.png"))
}

func TestEncodeThumbnail_ScalesDown(t *testing.T) {
	data := pngFixture(t, 200, 100)

	thumb, err := asset.EncodeThumbnail(data, 50)
	require.NoError(t, err)
	require.True(t, len(thumb) > 12)

	// webp container magic
	assert.Equal(t, "RIFF", string(thumb[0:4]))
	assert.Equal(t, "WEBP", string(thumb[8:12]))
}

func TestEncodeThumbnail_SmallImagePassesThrough(t *testing.T) {
	data := pngFixture(t, 20, 10)

	thumb, err := asset.EncodeThumbnail(data, 50)
	require.NoError(t, err)
	assert.NotEmpty(t, thumb)
}

func TestEncodeThumbnail_RejectsGarbage(t *testing.T) {
	_, err := asset.EncodeThumbnail([]byte("not an image"), 50)
	assert.Error(t, err)
}

func TestStore_Thumbnail(t *testing.T) {
	store, err := asset.NewStore(t.TempDir())
	require.NoError(t, err)

	relPath, err := store.SaveUpload(asset.CategoryGenerated, "img.png", bytes.NewReader(pngFixture(t, 300, 150)))
	require.NoError(t, err)

	thumbPath, err := store.Thumbnail(relPath, 256)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(thumbPath, asset.CategoryThumbnails+"/"))
	assert.True(t, strings.HasSuffix(thumbPath, ".webp"))

	data, err := store.Read(thumbPath)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
