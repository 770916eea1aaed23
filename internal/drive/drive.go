package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/cache"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/config"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveClient wraps the Google Drive API for the spreadsheet archive. Folder
// lookups are cached with a TTL so repeated syncs into the same destination
// skip the list calls.
type DriveClient struct {
	service    *drive.Service
	rootID     string
	folderPath *cache.TTL[string, string]
}

func NewDriveClient(ctx context.Context, cfg config.DriveConfig) (*DriveClient, error) {
	if cfg.CredentialsFile == "" {
		return nil, fmt.Errorf("drive credentials file is not configured")
	}

	service, err := drive.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	client := &DriveClient{
		service:    service,
		folderPath: cache.NewTTL[string, string](cfg.FolderCacheSize, cfg.FolderCacheTTL),
	}

	rootID, err := client.ensureRootFolder(ctx, cfg.RootFolderName)
	if err != nil {
		return nil, err
	}
	client.rootID = rootID

	log.Printf("Connected to Google Drive, archive root %q (%s)", cfg.RootFolderName, rootID)
	return client, nil
}

func (c *DriveClient) ensureRootFolder(ctx context.Context, name string) (string, error) {
	id, err := c.findChildFolder(ctx, "root", name)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	return c.createFolder(ctx, "root", name)
}

// EnsureFolderPath walks the segments under the archive root, creating any
// folder that does not exist yet, and returns the ID of the final folder.
func (c *DriveClient) EnsureFolderPath(ctx context.Context, segments ...string) (string, error) {
	parentID := c.rootID
	prefix := ""

	for _, segment := range segments {
		if prefix == "" {
			prefix = segment
		} else {
			prefix = prefix + "/" + segment
		}

		if id, ok := c.folderPath.Get(prefix); ok {
			parentID = id
			continue
		}

		id, err := c.findChildFolder(ctx, parentID, segment)
		if err != nil {
			return "", err
		}
		if id == "" {
			id, err = c.createFolder(ctx, parentID, segment)
			if err != nil {
				return "", err
			}
		}

		c.folderPath.Set(prefix, id)
		parentID = id
	}

	return parentID, nil
}

// FindFile looks up a file by name inside a folder. Returns an empty ID when
// the file does not exist; that is expected absence, not an error.
func (c *DriveClient) FindFile(ctx context.Context, parentID, name string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQueryTerm(name), parentID)

	list, err := c.service.Files.List().
		Q(query).
		Fields("files(id)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", classifyDriveError("find file "+name, err)
	}

	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (c *DriveClient) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, classifyDriveError("download file "+fileID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	return data, nil
}

// UploadNew creates a file inside a folder and returns its ID.
func (c *DriveClient) UploadNew(ctx context.Context, parentID, name string, data []byte, contentType string) (string, error) {
	file := &drive.File{
		Name:    name,
		Parents: []string{parentID},
	}

	created, err := c.service.Files.Create(file).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", classifyDriveError("upload file "+name, err)
	}
	return created.Id, nil
}

// UpdateContent replaces an existing file's content in place.
func (c *DriveClient) UpdateContent(ctx context.Context, fileID string, data []byte, contentType string) error {
	_, err := c.service.Files.Update(fileID, &drive.File{}).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return classifyDriveError("update file "+fileID, err)
	}
	return nil
}

func (c *DriveClient) findChildFolder(ctx context.Context, parentID, name string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQueryTerm(name), parentID, folderMimeType)

	list, err := c.service.Files.List().
		Q(query).
		Fields("files(id)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", classifyDriveError("find folder "+name, err)
	}

	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (c *DriveClient) createFolder(ctx context.Context, parentID, name string) (string, error) {
	folder := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}

	created, err := c.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", classifyDriveError("create folder "+name, err)
	}
	return created.Id, nil
}

// classifyDriveError maps quota responses to the rate-limit sentinel so the
// retry layer backs off instead of giving up.
func classifyDriveError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || (apiErr.Code == 403 && isQuotaError(apiErr)) {
			return fmt.Errorf("%w: %s: %v", models.ErrRateLimited, op, err)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func isQuotaError(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		reason := strings.ToLower(item.Reason)
		if strings.Contains(reason, "ratelimit") || strings.Contains(reason, "quota") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "quota")
}

func escapeQueryTerm(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	return strings.ReplaceAll(term, `'`, `\'`)
}
