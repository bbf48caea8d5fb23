package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wager-settlement/internal/messaging"
	"wager-settlement/internal/metrics"
	"wager-settlement/internal/models"
	"wager-settlement/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	minNameLength        = 3
	maxNameLength        = 100
	minDescriptionLength = 10
	maxDescriptionLength = 500
	maxSideLabelLength   = 50
)

// KeyGenerator creates custody keypairs and returns the address with its sealed credential
type KeyGenerator interface {
	Generate() (address string, sealed string, err error)
}

// CreateWagerInput is what a creator submits for a new wager
type CreateWagerInput struct {
	CreatorID   int64
	Category    models.Category
	Name        string
	Description string
	ImageURL    *string
	Side1       string
	Side2       string
	EndTime     time.Time
	Visibility  models.Visibility
}

// PoolSummary is the per-side view of a wager's confirmed stakes
type PoolSummary struct {
	WagerID    uuid.UUID `json:"wager_id"`
	Side1Total int64     `json:"side_1_total"`
	Side2Total int64     `json:"side_2_total"`
	TotalPool  int64     `json:"total_pool"`
	BetCount   int64     `json:"bet_count"`

	// stakes whose transfer is still waiting for confirmation
	PendingTransfers int64 `json:"pending_transfers"`
}

// WagerService owns the wager lifecycle: creation, expiry, resolution
type WagerService struct {
	repo   *repository.Repository
	keys   KeyGenerator
	events messaging.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func NewWagerService(repo *repository.Repository, keys KeyGenerator, events messaging.Publisher, log *zap.Logger) *WagerService {
	return &WagerService{
		repo:   repo,
		keys:   keys,
		events: events,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateWager validates the input, mints one custody address per side and stores the wager as active
func (ws *WagerService) CreateWager(ctx context.Context, in CreateWagerInput) (*models.Wager, error) {
	now := ws.now()
	if err := validateWagerInput(&in, now); err != nil {
		return nil, err
	}

	side1Address, side1Credential, err := ws.keys.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate side 1 custody address: %w", err)
	}
	side2Address, side2Credential, err := ws.keys.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate side 2 custody address: %w", err)
	}

	wager := &models.Wager{
		CreatorID:       in.CreatorID,
		Category:        in.Category,
		Name:            in.Name,
		Description:     in.Description,
		ImageURL:        in.ImageURL,
		Side1Label:      in.Side1,
		Side2Label:      in.Side2,
		Side1Address:    side1Address,
		Side2Address:    side2Address,
		Side1Credential: side1Credential,
		Side2Credential: side2Credential,
		EndTime:         in.EndTime.UTC(),
		Visibility:      in.Visibility,
		Status:          models.WagerStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := ws.repo.CreateWager(ctx, wager); err != nil {
		return nil, fmt.Errorf("failed to create wager: %w", err)
	}

	ws.log.Info("wager created",
		zap.String("wager_id", wager.ID.String()),
		zap.Int64("creator_id", wager.CreatorID),
		zap.Time("end_time", wager.EndTime),
	)
	ws.publish(ctx, messaging.Event{Type: messaging.EventWagerCreated, WagerID: wager.ID, OccurredAt: now})

	return wager, nil
}

func validateWagerInput(in *CreateWagerInput, now time.Time) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Side1 = strings.TrimSpace(in.Side1)
	in.Side2 = strings.TrimSpace(in.Side2)
	if in.Visibility == "" {
		in.Visibility = models.VisibilityPublic
	}

	switch {
	case in.CreatorID == 0:
		return withReason(ErrInvalidWager, "creator is required")
	case !in.Category.Valid():
		return withReason(ErrInvalidWager, fmt.Sprintf("unknown category %q", in.Category))
	case len(in.Name) < minNameLength || len(in.Name) > maxNameLength:
		return withReason(ErrInvalidWager, fmt.Sprintf("name must be %d-%d characters", minNameLength, maxNameLength))
	case len(in.Description) < minDescriptionLength || len(in.Description) > maxDescriptionLength:
		return withReason(ErrInvalidWager, fmt.Sprintf("description must be %d-%d characters", minDescriptionLength, maxDescriptionLength))
	case in.Side1 == "" || in.Side2 == "":
		return withReason(ErrInvalidWager, "both side labels are required")
	case len(in.Side1) > maxSideLabelLength || len(in.Side2) > maxSideLabelLength:
		return withReason(ErrInvalidWager, fmt.Sprintf("side labels must be at most %d characters", maxSideLabelLength))
	case strings.EqualFold(in.Side1, in.Side2):
		return withReason(ErrInvalidWager, "side labels must differ")
	case !in.Visibility.Valid():
		return withReason(ErrInvalidWager, fmt.Sprintf("unknown visibility %q", in.Visibility))
	case !in.EndTime.After(now):
		return withReason(ErrInvalidWager, "end time must be in the future")
	}
	return nil
}

// SweepExpired ends every active wager whose end time has passed and returns the ones this call ended
func (ws *WagerService) SweepExpired(ctx context.Context) ([]*models.Wager, error) {
	now := ws.now()
	ended, err := ws.repo.EndExpiredWagers(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to end expired wagers: %w", err)
	}

	for _, wager := range ended {
		ws.publish(ctx, messaging.Event{Type: messaging.EventWagerEnded, WagerID: wager.ID, OccurredAt: now})
	}
	if len(ended) > 0 {
		metrics.WagersSwept.Add(float64(len(ended)))
		ws.log.Info("ended expired wagers", zap.Int("count", len(ended)))
	}
	return ended, nil
}

// ListWagersNeedingResolution returns ended wagers that still have no winner
func (ws *WagerService) ListWagersNeedingResolution(ctx context.Context) ([]*models.Wager, error) {
	wagers, err := ws.repo.ListEndedUnresolvedWagers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved wagers: %w", err)
	}
	return wagers, nil
}

// AssignWinner records the winning side. Only the creator may call it, only
// once, and only after the wager has ended.
func (ws *WagerService) AssignWinner(ctx context.Context, wagerID uuid.UUID, callerID int64, side models.Side) (*models.Wager, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}

	wager, err := ws.GetWager(ctx, wagerID)
	if err != nil {
		return nil, err
	}
	if wager.CreatorID != callerID {
		return nil, ErrNotAuthorized
	}
	if wager.WinningSide != nil {
		return nil, ErrAlreadyResolved
	}
	if wager.Status != models.WagerStatusEnded {
		return nil, withReason(ErrWagerNotEnded, fmt.Sprintf("status is %s", wager.Status))
	}

	now := ws.now()
	ok, err := ws.repo.SetWinningSide(ctx, wagerID, side, now)
	if err != nil {
		return nil, fmt.Errorf("failed to set winning side: %w", err)
	}
	if !ok {
		// lost a race with another resolution or a cancel
		current, err := ws.GetWager(ctx, wagerID)
		if err != nil {
			return nil, err
		}
		if current.WinningSide != nil {
			return nil, ErrAlreadyResolved
		}
		return nil, withReason(ErrWagerNotEnded, fmt.Sprintf("status is %s", current.Status))
	}

	ws.log.Info("winner assigned",
		zap.String("wager_id", wagerID.String()),
		zap.String("side", string(side)),
		zap.Int64("caller_id", callerID),
	)
	ws.publish(ctx, messaging.Event{Type: messaging.EventWagerResolved, WagerID: wagerID, Side: side, OccurredAt: now})

	return ws.repo.GetWagerByID(ctx, wagerID)
}

// CancelWager withdraws an active or ended-but-unresolved wager. Creator only.
func (ws *WagerService) CancelWager(ctx context.Context, wagerID uuid.UUID, callerID int64) (*models.Wager, error) {
	wager, err := ws.GetWager(ctx, wagerID)
	if err != nil {
		return nil, err
	}
	if wager.CreatorID != callerID {
		return nil, ErrNotAuthorized
	}
	if wager.WinningSide != nil {
		return nil, ErrAlreadyResolved
	}

	ok, err := ws.repo.CancelWager(ctx, wagerID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel wager: %w", err)
	}
	if !ok {
		return nil, withReason(ErrWagerNotActive, "wager is already resolved or cancelled")
	}

	ws.log.Info("wager cancelled", zap.String("wager_id", wagerID.String()), zap.Int64("caller_id", callerID))
	ws.publish(ctx, messaging.Event{Type: messaging.EventWagerCancelled, WagerID: wagerID, OccurredAt: ws.now()})

	return ws.repo.GetWagerByID(ctx, wagerID)
}

func (ws *WagerService) GetWager(ctx context.Context, wagerID uuid.UUID) (*models.Wager, error) {
	wager, err := ws.repo.GetWagerByID(ctx, wagerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWagerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wager: %w", err)
	}
	return wager, nil
}

// ListPublicActive returns public wagers that are still open for bets,
// optionally narrowed to one category
func (ws *WagerService) ListPublicActive(ctx context.Context, category models.Category, limit, offset int) ([]*models.Wager, error) {
	if category != "" && !category.Valid() {
		return nil, withReason(ErrInvalidWager, fmt.Sprintf("unknown category %q", category))
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return ws.repo.ListPublicActiveWagers(ctx, ws.now(), category, limit, offset)
}

func (ws *WagerService) ListByCreator(ctx context.Context, creatorID int64) ([]*models.Wager, error) {
	return ws.repo.ListWagersByCreator(ctx, creatorID)
}

// PoolSummary totals confirmed stakes per side
func (ws *WagerService) PoolSummary(ctx context.Context, wagerID uuid.UUID) (*PoolSummary, error) {
	if _, err := ws.GetWager(ctx, wagerID); err != nil {
		return nil, err
	}

	side1, side2 := models.Side1, models.Side2
	side1Total, err := ws.repo.SumSettledBets(ctx, wagerID, &side1)
	if err != nil {
		return nil, fmt.Errorf("failed to total side 1: %w", err)
	}
	side2Total, err := ws.repo.SumSettledBets(ctx, wagerID, &side2)
	if err != nil {
		return nil, fmt.Errorf("failed to total side 2: %w", err)
	}
	count, err := ws.repo.CountBetsByWager(ctx, wagerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count bets: %w", err)
	}
	pending, err := ws.repo.CountTransfersByStatus(ctx, wagerID, models.TransferStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending transfers: %w", err)
	}

	return &PoolSummary{
		WagerID:    wagerID,
		Side1Total: side1Total,
		Side2Total: side2Total,
		TotalPool:  side1Total + side2Total,
		BetCount:   count,

		PendingTransfers: pending,
	}, nil
}

func (ws *WagerService) publish(ctx context.Context, event messaging.Event) {
	publish(ctx, ws.events, ws.log, event)
}

// publish emits an event without failing the caller; the database is the source of truth
func publish(ctx context.Context, events messaging.Publisher, log *zap.Logger, event messaging.Event) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		log.Warn("failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("wager_id", event.WagerID.String()),
			zap.Error(err),
		)
	}
}
