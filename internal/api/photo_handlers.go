package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"github.com/fuelupapp/fuelup-server/internal/blob"
	"github.com/fuelupapp/fuelup-server/internal/errors"
)

// PhotoStore presigns photo uploads and deletes stored photos.
type PhotoStore interface {
	PresignUpload(ctx context.Context, folder, filename, contentType string) (*blob.Upload, error)
	Delete(ctx context.Context, key string) error
}

func (s *Server) registerPhotoRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "presignPhotoUpload",
		Method:      http.MethodPost,
		Path:        "/api/v1/photos/upload",
		Summary:     "Get a photo upload URL",
		Description: "Returns a presigned PUT URL and the public URL the photo will have once uploaded.",
		Tags:        []string{"Photos"},
		Security:    bearer,
		Middlewares: huma.Middlewares{s.rateLimit},
	}, s.handlePresignUpload)

	huma.Register(s.api, huma.Operation{
		OperationID: "deletePhoto",
		Method:      http.MethodDelete,
		Path:        "/api/v1/photos/{key}",
		Summary:     "Delete a photo",
		Description: "The key is the value returned by the upload call, URL-encoded.",
		Tags:        []string{"Photos"},
		Security:    bearer,
		Middlewares: huma.Middlewares{s.rateLimit},
	}, s.handleDeletePhoto)
}

// PresignUploadInput asks for an upload URL.
type PresignUploadInput struct {
	Body struct {
		Filename    string `json:"filename" minLength:"1" doc:"Original file name"`
		ContentType string `json:"contentType" minLength:"1" example:"image/jpeg"`
		Folder      string `json:"folder,omitempty" doc:"Key prefix, default photos"`
	}
}

// PresignUploadOutput wraps the presigned upload.
type PresignUploadOutput struct {
	Body blob.Upload
}

// DeletePhotoInput names the photo to delete.
type DeletePhotoInput struct {
	Key string `path:"key" doc:"Object key"`
}

// DeletePhotoOutput confirms a delete.
type DeletePhotoOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

func (s *Server) photos() (PhotoStore, error) {
	if s.services.Photos == nil {
		return nil, errors.Unavailable("photo storage is not configured")
	}
	return s.services.Photos, nil
}

func (s *Server) handlePresignUpload(ctx context.Context, input *PresignUploadInput) (*PresignUploadOutput, error) {
	if _, err := GetUserID(ctx); err != nil {
		return nil, err
	}
	photos, err := s.photos()
	if err != nil {
		return nil, err
	}

	upload, err := photos.PresignUpload(ctx, input.Body.Folder, input.Body.Filename, input.Body.ContentType)
	if err != nil {
		return nil, err
	}
	return &PresignUploadOutput{Body: *upload}, nil
}

func (s *Server) handleDeletePhoto(ctx context.Context, input *DeletePhotoInput) (*DeletePhotoOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	photos, err := s.photos()
	if err != nil {
		return nil, err
	}

	key, err := url.PathUnescape(input.Key)
	if err != nil {
		return nil, errors.Validationf("invalid photo key %q", input.Key)
	}
	if err := photos.Delete(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("photo deleted", "user_id", userID, "key", key)

	out := &DeletePhotoOutput{}
	out.Body.Success = true
	return out, nil
}
