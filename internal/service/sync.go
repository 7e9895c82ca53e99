package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/fuelupapp/fuelup-server/internal/errors"
	"github.com/fuelupapp/fuelup-server/internal/id"
	"github.com/fuelupapp/fuelup-server/internal/store"
	"golang.org/x/sync/errgroup"
)

// PayloadValidator checks a payload against the schema of its kind.
type PayloadValidator interface {
	ValidatePayload(kind domain.Kind, payload json.RawMessage) error
}

// ChangeNotifier is told about pushes that wrote something.
type ChangeNotifier interface {
	NotifyChanged(userID, originDeviceID string, kinds []domain.Kind)
}

// SyncOptions bounds push and pull work.
type SyncOptions struct {
	PageSize        int
	MaxPageSize     int
	MaxBatchSize    int
	PushConcurrency int
}

func (o *SyncOptions) setDefaults() {
	if o.PageSize <= 0 {
		o.PageSize = 500
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = 1000
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = 500
	}
	if o.PushConcurrency <= 0 {
		o.PushConcurrency = 8
	}
}

// PushRequest is a batch of client changes from one device.
// When Pull is set the response also carries the changes since Watermark.
type PushRequest struct {
	DeviceID   string
	DeviceName string
	Changes    []domain.Change
	Pull       bool
	Kinds      []string
	Watermark  string
}

// PushResponse holds one outcome per change, in request order.
type PushResponse struct {
	Results []domain.Outcome
	Changes *PullResponse
}

// PullRequest asks for the changes after Watermark. An empty Watermark resumes
// from the device's checkpoint.
type PullRequest struct {
	DeviceID   string
	DeviceName string
	Kinds      []string
	Watermark  string
	Limit      int
}

// PullResponse is one page of changes. Watermark is the token to send next.
type PullResponse struct {
	Entities  []*domain.Entity
	Watermark string
	HasMore   bool
}

// SyncService coordinates push and pull between devices and the entity store.
// It holds no locks of its own; per-record atomicity lives in the store.
type SyncService struct {
	entities    store.EntityStore
	checkpoints *CheckpointManager
	validator   PayloadValidator
	notifier    ChangeNotifier
	opts        SyncOptions
	logger      *slog.Logger
}

// NewSyncService creates a new sync service. validator and notifier may be nil.
func NewSyncService(
	entities store.EntityStore,
	checkpoints *CheckpointManager,
	validator PayloadValidator,
	notifier ChangeNotifier,
	opts SyncOptions,
	logger *slog.Logger,
) *SyncService {
	opts.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{
		entities:    entities,
		checkpoints: checkpoints,
		validator:   validator,
		notifier:    notifier,
		opts:        opts,
		logger:      logger,
	}
}

// itemResult is the outcome of one change plus whether it wrote to the store.
type itemResult struct {
	outcome domain.Outcome
	wrote   bool
}

// Push applies a batch of changes. Per-item failures are reported in the
// results; only a storage failure fails the whole call.
func (s *SyncService) Push(ctx context.Context, userID string, req PushRequest) (*PushResponse, error) {
	if err := validateDeviceID(req.DeviceID); err != nil {
		return nil, err
	}
	if len(req.Changes) == 0 {
		return nil, errors.Validation("changes must not be empty")
	}
	if len(req.Changes) > s.opts.MaxBatchSize {
		return nil, errors.Validationf("batch of %d changes exceeds the limit of %d", len(req.Changes), s.opts.MaxBatchSize)
	}

	changes := slices.Clone(req.Changes)
	results := make([]itemResult, len(changes))

	// Items touching the same record run in batch order on one goroutine.
	var (
		order  []string
		groups = make(map[string][]int)
	)
	for i := range changes {
		c := &changes[i]
		if c.IsCreate() && c.ID == "" {
			c.ID = id.NewEntityID()
		}
		if err := s.validateChange(*c); err != nil {
			results[i] = itemResult{outcome: domain.Rejected(*c, err)}
			continue
		}
		key := string(c.Kind) + "\x00" + c.ID
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.PushConcurrency)
	for _, key := range order {
		indexes := groups[key]
		g.Go(func() error {
			for _, i := range indexes {
				r, err := s.pushOne(gctx, userID, changes[i])
				if err != nil {
					return err
				}
				results[i] = r
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("push failed",
			"user_id", userID,
			"device_id", req.DeviceID,
			"error", err,
		)
		return nil, err
	}

	resp := &PushResponse{Results: make([]domain.Outcome, len(results))}
	var (
		changedKinds []domain.Kind
		counts       = make(map[domain.Status]int)
	)
	for i, r := range results {
		resp.Results[i] = r.outcome
		counts[r.outcome.Status]++
		if r.wrote && !slices.Contains(changedKinds, r.outcome.Kind) {
			changedKinds = append(changedKinds, r.outcome.Kind)
		}
	}

	s.logger.Info("push processed",
		"user_id", userID,
		"device_id", req.DeviceID,
		"items", len(results),
		"applied", counts[domain.StatusApplied],
		"conflicts", counts[domain.StatusConflict],
		"rejected", counts[domain.StatusRejected],
	)

	if len(changedKinds) > 0 && s.notifier != nil {
		slices.Sort(changedKinds)
		s.notifier.NotifyChanged(userID, req.DeviceID, changedKinds)
	}

	if req.Pull {
		pulled, err := s.Pull(ctx, userID, PullRequest{
			DeviceID:   req.DeviceID,
			DeviceName: req.DeviceName,
			Kinds:      req.Kinds,
			Watermark:  req.Watermark,
		})
		if err != nil {
			return nil, err
		}
		resp.Changes = pulled
	}

	return resp, nil
}

func (s *SyncService) validateChange(c domain.Change) error {
	if !c.Kind.Valid() {
		return errors.Validationf("unknown kind %q", c.Kind)
	}
	if err := domain.ValidateID("id", c.ID); err != nil {
		return err
	}
	if c.Delete {
		if c.IsCreate() {
			return errors.InvalidVersionf("delete of %s %s requires a base version", c.Kind, c.ID)
		}
	} else if s.validator != nil {
		if err := s.validator.ValidatePayload(c.Kind, c.Payload); err != nil {
			return err
		}
	}
	if !c.IsCreate() && c.Base() < 1 {
		return errors.InvalidVersionf("base version %d is not a valid version", c.Base())
	}
	return nil
}

// pushOne runs a single validated change. The error return is reserved for
// failures that abort the whole push.
func (s *SyncService) pushOne(ctx context.Context, userID string, c domain.Change) (itemResult, error) {
	if c.IsCreate() {
		return s.create(ctx, userID, c)
	}
	return s.apply(ctx, userID, c)
}

func (s *SyncService) create(ctx context.Context, userID string, c domain.Change) (itemResult, error) {
	e, err := s.entities.Create(ctx, c.Kind, c.ID, userID, c.Payload)
	if err == nil {
		return itemResult{outcome: domain.Applied(c, e), wrote: true}, nil
	}
	if !errors.Is(err, store.ErrAlreadyExists) {
		return failedItem(c, err)
	}

	existing, err := s.entities.Get(ctx, c.Kind, c.ID)
	if err != nil {
		return failedItem(c, err)
	}
	switch {
	case existing.OwnerID != userID:
		return rejectedItem(c, errors.AlreadyExistsf("%s %s already exists", c.Kind, c.ID)), nil
	case existing.IsDeleted():
		return itemResult{outcome: Resolve(c, existing).outcome(c)}, nil
	case existing.Version == 1 && existing.SamePayload(c.Payload):
		// Replay of a create that already succeeded.
		return itemResult{outcome: domain.Applied(c, existing)}, nil
	default:
		return itemResult{outcome: Resolve(c, existing).outcome(c)}, nil
	}
}

func (s *SyncService) apply(ctx context.Context, userID string, c domain.Change) (itemResult, error) {
	m := store.Mutation{Payload: c.Payload, Delete: c.Delete}
	for attempt := 0; ; attempt++ {
		e, err := s.entities.ApplyIfVersion(ctx, c.Kind, c.ID, userID, c.Base(), m)
		if err == nil {
			return itemResult{outcome: domain.Applied(c, e), wrote: true}, nil
		}

		var conflict *store.ConflictError
		if !errors.As(err, &conflict) {
			return failedItem(c, err)
		}
		res := Resolve(c, conflict.Current)
		if res.Verdict == VerdictRetry && attempt == 0 {
			s.logger.Debug("retrying change after transient conflict",
				"kind", c.Kind,
				"id", c.ID,
				"base_version", c.Base(),
			)
			continue
		}
		return itemResult{outcome: res.outcome(c)}, nil
	}
}

// failedItem reports err as a rejection unless it is a storage failure,
// which is returned to abort the push.
func failedItem(c domain.Change, err error) (itemResult, error) {
	var coded *errors.Error
	if !errors.As(err, &coded) || coded.Code == errors.CodeStorageUnavailable {
		return itemResult{}, err
	}
	return rejectedItem(c, err), nil
}

func rejectedItem(c domain.Change, err error) itemResult {
	return itemResult{outcome: domain.Rejected(c, err)}
}

// Pull returns the user's changes after the request watermark, or after the
// device checkpoint when the request carries none, and advances the checkpoint.
func (s *SyncService) Pull(ctx context.Context, userID string, req PullRequest) (*PullResponse, error) {
	if err := validateDeviceID(req.DeviceID); err != nil {
		return nil, err
	}
	kinds, err := domain.ParseKinds(req.Kinds)
	if err != nil {
		return nil, err
	}

	var since domain.Watermark
	if req.Watermark != "" {
		if since, err = store.DecodeWatermark(req.Watermark); err != nil {
			return nil, err
		}
	} else {
		cp, err := s.checkpoints.GetCheckpoint(ctx, userID, req.DeviceID)
		if err != nil {
			return nil, err
		}
		since = cp.Watermark
	}

	params := store.PaginationParams{
		Limit:    req.Limit,
		Default:  s.opts.PageSize,
		MaxLimit: s.opts.MaxPageSize,
	}
	params.Validate()

	page, err := s.entities.ListChangedSince(ctx, userID, kinds, since, params.Limit)
	if err != nil {
		return nil, err
	}

	if _, err := s.checkpoints.AdvanceCheckpoint(ctx, userID, req.DeviceID, req.DeviceName, page.Watermark); err != nil {
		return nil, err
	}

	for _, e := range page.Entities {
		if e.IsDeleted() {
			e.Payload = nil
		}
	}

	s.logger.Debug("pull served",
		"user_id", userID,
		"device_id", req.DeviceID,
		"since", uint64(since),
		"watermark", uint64(page.Watermark),
		"count", len(page.Entities),
		"has_more", page.HasMore,
	)

	return &PullResponse{
		Entities:  page.Entities,
		Watermark: store.EncodeWatermark(page.Watermark),
		HasMore:   page.HasMore,
	}, nil
}

// ListDevices returns the user's device checkpoints.
func (s *SyncService) ListDevices(ctx context.Context, userID string) ([]*domain.Checkpoint, error) {
	return s.checkpoints.ListDevices(ctx, userID)
}
