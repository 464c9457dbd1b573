package meeting

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/ecabinet/blobstore"
	"github.com/hazyhaar/ecabinet/document"
	"github.com/hazyhaar/ecabinet/idgen"
	"github.com/hazyhaar/ecabinet/observability"
)

// File is one uploaded file.
type File struct {
	Name string
	Data []byte
}

// UploadBatch stores up to MaxUploadFiles files uploaded during a live
// meeting, registers each as a document owned by ownerID and attaches them
// all, in order, to the meeting. When a file fails to register, the files
// before it stay registered and attached, and are returned with the error.
func (s *Service) UploadBatch(ctx context.Context, meetingID, ownerID string, files []File) ([]document.Ref, error) {
	if len(files) > MaxUploadFiles {
		return nil, ErrTooManyFiles
	}
	if len(files) == 0 {
		return nil, nil
	}
	if _, err := s.cfg.Store.GetMeeting(ctx, meetingID); err != nil {
		return nil, fmt.Errorf("meeting: upload to %s: %w", meetingID, err)
	}

	now := s.cfg.Now()
	refs := make([]document.Ref, 0, len(files))
	ids := make([]string, 0, len(files))
	for i, f := range files {
		ref := s.newRef(ctx, idgen.LiveDocument(now, i), ownerID, f)
		ref.SizeLabel = document.LiveSizeLabel(int64(len(f.Data)))
		if err := s.register(ctx, ref, f.Data); err != nil {
			// Keep what was already registered attached to the meeting.
			if len(ids) > 0 {
				if _, aerr := s.cfg.Attach.AttachMany(ctx, meetingID, ids...); aerr != nil {
					err = errors.Join(err, aerr)
				}
			}
			return refs, err
		}
		refs = append(refs, ref)
		ids = append(ids, ref.ID)
	}

	if _, err := s.cfg.Attach.AttachMany(ctx, meetingID, ids...); err != nil {
		return refs, err
	}
	return refs, nil
}

// UploadDocument stores one file in the document library.
func (s *Service) UploadDocument(ctx context.Context, ownerID string, f File) (document.Ref, error) {
	ref := s.newRef(ctx, idgen.Document(), ownerID, f)
	ref.SizeLabel = document.FormatSize(int64(len(f.Data)))
	if err := s.register(ctx, ref, f.Data); err != nil {
		return document.Ref{}, err
	}
	return ref, nil
}

// newRef uploads f and builds its Ref. A failed upload leaves the document
// with a transient session reference, previewable from this process only.
func (s *Service) newRef(ctx context.Context, id, ownerID string, f File) document.Ref {
	url := document.TransientURL(id)
	if s.cfg.Blobs != nil {
		u, err := s.cfg.Blobs.Upload(ctx, blobstore.ObjectPath(id, f.Name), f.Data)
		if err != nil {
			s.cfg.Logger.Warn("meeting: upload failed, using transient reference",
				"document", id, "name", f.Name, "error", err)
		} else {
			url = u
		}
	}
	ref := document.NewRef(id, f.Name, url, nil)
	ref.UpdatedAt = s.cfg.Now().Format("2006-01-02")
	ref.OwnerID = ownerID
	return ref
}

// register makes the bytes previewable and persists the document.
func (s *Service) register(ctx context.Context, ref document.Ref, data []byte) error {
	s.cfg.Uploads.Put(ref.ID, data)
	if s.cfg.Cache != nil {
		s.cfg.Cache.Put(ctx, ref.ID, data)
	}
	if err := s.cfg.Store.InsertDocument(ctx, ref); err != nil {
		return fmt.Errorf("meeting: register %s: %w", ref.ID, err)
	}
	if s.cfg.Events != nil {
		s.cfg.Events.LogEvent(ctx, observability.BusinessEvent{
			EventType:  "document.uploaded",
			EntityType: "document",
			EntityID:   ref.ID,
			UserID:     ref.OwnerID,
			Action:     "upload",
			Details:    fmt.Sprintf(`{"name":%q,"transient":%t}`, ref.Name, document.IsTransient(ref.RemoteURL)),
			Success:    true,
		})
	}
	return nil
}
