package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"wager-settlement/internal/models"
	"wager-settlement/internal/session"

	"go.uber.org/zap"
)

type DraftStep string

const (
	StepCategory    DraftStep = "category"
	StepName        DraftStep = "name"
	StepDescription DraftStep = "description"
	StepSide1       DraftStep = "side_1"
	StepSide2       DraftStep = "side_2"
	StepImage       DraftStep = "image"
	StepEndTime     DraftStep = "end_time"
	StepReview      DraftStep = "review"
)

const (
	defaultDraftTTL = 30 * time.Minute
	skipInput       = "/no"
	draftTimeZone   = "America/New_York"
)

// short end-time layouts accepted besides RFC3339, e.g. "5-23-26 10pm"
var endTimeLayouts = []string{
	"1-2-06 3pm",
	"1-2-06 3:04pm",
	"1-2-06 3 pm",
	"1-2-06 3:04 pm",
}

// Draft is a wager being assembled one answer at a time
type Draft struct {
	UserID      int64             `json:"user_id"`
	Step        DraftStep         `json:"step"`
	Category    models.Category   `json:"category,omitempty"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Side1       string            `json:"side_1,omitempty"`
	Side2       string            `json:"side_2,omitempty"`
	ImageURL    *string           `json:"image_url,omitempty"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Visibility  models.Visibility `json:"visibility"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// DraftService walks a creator through wager creation, keeping the draft in a session store
type DraftService struct {
	store    session.Store
	wagers   *WagerService
	ttl      time.Duration
	location *time.Location
	log      *zap.Logger
	now      func() time.Time
}

func NewDraftService(store session.Store, wagers *WagerService, ttl time.Duration, log *zap.Logger) *DraftService {
	if ttl <= 0 {
		ttl = defaultDraftTTL
	}
	location, err := time.LoadLocation(draftTimeZone)
	if err != nil {
		log.Warn("failed to load draft time zone, using UTC", zap.Error(err))
		location = time.UTC
	}
	return &DraftService{
		store:    store,
		wagers:   wagers,
		ttl:      ttl,
		location: location,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func draftKey(userID int64) string {
	return fmt.Sprintf("draft:%d", userID)
}

// Start discards any draft in progress and begins a new one
func (ds *DraftService) Start(ctx context.Context, userID int64, visibility models.Visibility) (*Draft, error) {
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	if !visibility.Valid() {
		return nil, withReason(ErrInvalidDraft, fmt.Sprintf("unknown visibility %q", visibility))
	}

	draft := &Draft{
		UserID:     userID,
		Step:       StepCategory,
		Visibility: visibility,
	}
	if err := ds.save(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

func (ds *DraftService) Get(ctx context.Context, userID int64) (*Draft, error) {
	var draft Draft
	err := ds.store.Load(ctx, draftKey(userID), &draft)
	if errors.Is(err, session.ErrNotFound) {
		return nil, withReason(ErrInvalidDraft, "no wager draft in progress")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	return &draft, nil
}

// Input applies the answer for the current step and advances the draft
func (ds *DraftService) Input(ctx context.Context, userID int64, input string) (*Draft, error) {
	draft, err := ds.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	input = strings.TrimSpace(input)

	switch draft.Step {
	case StepCategory:
		category := models.Category(strings.TrimPrefix(input, "/"))
		if !category.Valid() {
			return nil, withReason(ErrInvalidDraft, fmt.Sprintf("unknown category %q", input))
		}
		draft.Category = category
		draft.Step = StepName

	case StepName:
		if len(input) < minNameLength || len(input) > maxNameLength {
			return nil, withReason(ErrInvalidDraft, fmt.Sprintf("name must be %d-%d characters", minNameLength, maxNameLength))
		}
		draft.Name = input
		draft.Step = StepDescription

	case StepDescription:
		if len(input) < minDescriptionLength || len(input) > maxDescriptionLength {
			return nil, withReason(ErrInvalidDraft, fmt.Sprintf("description must be %d-%d characters", minDescriptionLength, maxDescriptionLength))
		}
		draft.Description = input
		draft.Step = StepSide1

	case StepSide1:
		if input == "" || len(input) > maxSideLabelLength {
			return nil, withReason(ErrInvalidDraft, fmt.Sprintf("side must be 1-%d characters", maxSideLabelLength))
		}
		draft.Side1 = input
		draft.Step = StepSide2

	case StepSide2:
		if input == "" || len(input) > maxSideLabelLength {
			return nil, withReason(ErrInvalidDraft, fmt.Sprintf("side must be 1-%d characters", maxSideLabelLength))
		}
		if strings.EqualFold(input, draft.Side1) {
			return nil, withReason(ErrInvalidDraft, "sides must differ")
		}
		draft.Side2 = input
		draft.Step = StepImage

	case StepImage:
		if strings.EqualFold(input, skipInput) || input == "" {
			draft.ImageURL = nil
		} else {
			image := input
			draft.ImageURL = &image
		}
		draft.Step = StepEndTime

	case StepEndTime:
		endTime, err := ds.ParseEndTime(input)
		if err != nil {
			return nil, err
		}
		draft.EndTime = &endTime
		draft.Step = StepReview

	case StepReview:
		return nil, withReason(ErrInvalidDraft, "draft is complete, confirm or cancel it")

	default:
		return nil, withReason(ErrInvalidDraft, fmt.Sprintf("unknown step %q", draft.Step))
	}

	if err := ds.save(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// ParseEndTime accepts RFC3339 or the short "1-2-06 3pm" form in the draft time zone
func (ds *DraftService) ParseEndTime(input string) (time.Time, error) {
	input = strings.TrimSpace(input)

	parsed, err := time.Parse(time.RFC3339, input)
	if err != nil {
		lowered := strings.ToLower(input)
		for _, layout := range endTimeLayouts {
			if parsed, err = time.ParseInLocation(layout, lowered, ds.location); err == nil {
				break
			}
		}
	}
	if err != nil {
		return time.Time{}, withReason(ErrInvalidDraft, "end time must look like 5-23-26 10pm or 2026-05-23T22:00:00Z")
	}

	parsed = parsed.UTC()
	if !parsed.After(ds.now()) {
		return time.Time{}, withReason(ErrInvalidDraft, "end time must be in the future")
	}
	return parsed, nil
}

// Confirm creates the wager from a reviewed draft and clears the draft
func (ds *DraftService) Confirm(ctx context.Context, userID int64) (*models.Wager, error) {
	draft, err := ds.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if draft.Step != StepReview || draft.EndTime == nil {
		return nil, withReason(ErrInvalidDraft, fmt.Sprintf("draft is still at step %s", draft.Step))
	}

	wager, err := ds.wagers.CreateWager(ctx, CreateWagerInput{
		CreatorID:   userID,
		Category:    draft.Category,
		Name:        draft.Name,
		Description: draft.Description,
		ImageURL:    draft.ImageURL,
		Side1:       draft.Side1,
		Side2:       draft.Side2,
		EndTime:     *draft.EndTime,
		Visibility:  draft.Visibility,
	})
	if err != nil {
		return nil, err
	}

	if err := ds.store.Delete(ctx, draftKey(userID)); err != nil {
		ds.log.Warn("failed to clear confirmed draft", zap.Int64("user_id", userID), zap.Error(err))
	}
	return wager, nil
}

func (ds *DraftService) Cancel(ctx context.Context, userID int64) error {
	return ds.store.Delete(ctx, draftKey(userID))
}

func (ds *DraftService) save(ctx context.Context, draft *Draft) error {
	draft.UpdatedAt = ds.now()
	if err := ds.store.Save(ctx, draftKey(draft.UserID), draft, ds.ttl); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}
