package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Cloudinary keeps artifacts as raw assets. The asset public id is the key
// without its extension, prefixed with the configured folder.
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
	http   *http.Client
}

// NewCloudinary creates a store from account credentials
func NewCloudinary(cloudName, apiKey, apiSecret, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
	}
	return &Cloudinary{cld: cld, folder: folder, http: http.DefaultClient}, nil
}

func (c *Cloudinary) publicID(key string) string {
	id := strings.TrimSuffix(key, path.Ext(key))
	if c.folder == "" {
		return id
	}
	return c.folder + "/" + id
}

// Save uploads data as a raw asset
func (c *Cloudinary) Save(ctx context.Context, key string, data []byte, contentType string) error {
	res, err := c.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:     c.publicID(key),
		ResourceType: "raw",
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("failed to upload %s: %s", key, res.Error.Message)
	}
	return nil
}

// Load resolves the asset URL through the admin API and downloads it
func (c *Cloudinary) Load(ctx context.Context, key string) ([]byte, error) {
	asset, err := c.cld.Admin.Asset(ctx, admin.AssetParams{
		PublicID:  c.publicID(key),
		AssetType: "raw",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", key, err)
	}
	if asset.Error.Message != "" || asset.SecureURL == "" {
		return nil, ErrNotExist
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.SecureURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotExist
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("failed to download %s: status %d", key, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
