package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/student-hostel-booking/internal/database"
	"github.com/iliyamo/student-hostel-booking/internal/model"
	"github.com/iliyamo/student-hostel-booking/internal/realtime"
	"github.com/iliyamo/student-hostel-booking/internal/repository"
)

// RoomPatch carries the landlord-editable room fields.  Nil means
// unchanged.
type RoomPatch struct {
	Name         *string
	RoomType     *string
	Capacity     *uint32
	PriceCents   *uint32
	DepositCents *uint32
	Amenities    []string
}

// CacheInvalidator drops cached public listings.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ListingService manages hostels and rooms for landlords and publishes
// room changes to subscribers.
type ListingService struct {
	db      *sql.DB
	hostels *repository.HostelRepo
	rooms   *repository.RoomRepo
	changes realtime.Publisher
	cache   CacheInvalidator
	log     *logrus.Entry
}

func NewListingService(db *sql.DB, changes realtime.Publisher, log *logrus.Entry) *ListingService {
	return &ListingService{
		db:      db,
		hostels: repository.NewHostelRepo(db),
		rooms:   repository.NewRoomRepo(db),
		changes: changes,
		log:     log.WithField("component", "listing"),
	}
}

// UseCache makes landlord writes invalidate c.
func (s *ListingService) UseCache(c CacheInvalidator) { s.cache = c }

func (s *ListingService) CreateHostel(ctx context.Context, h *model.Hostel) error {
	if strings.TrimSpace(h.Name) == "" || strings.TrimSpace(h.City) == "" {
		return fmt.Errorf("%w: name and city are required", model.ErrInvalidRequest)
	}
	if err := s.hostels.Create(ctx, h); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// CreateRoom adds a room to a hostel owned by landlordID.
func (s *ListingService) CreateRoom(ctx context.Context, landlordID uint64, room *model.Room) error {
	if err := s.ownHostel(ctx, landlordID, room.HostelID); err != nil {
		return err
	}
	if room.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1", model.ErrInvalidRequest)
	}
	room.Amenities = normalizeAmenities(room.Amenities)
	if err := s.rooms.Create(ctx, room); err != nil {
		return err
	}
	s.publish(ctx, realtime.TypeInsert, *room)
	return nil
}

// UpdateRoom applies a patch under the room lock.  Capacity may not drop
// below the beds already claimed.
func (s *ListingService) UpdateRoom(ctx context.Context, landlordID, roomID uint64, p RoomPatch) (model.Room, error) {
	head, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return model.Room{}, err
	}
	if err := s.ownHostel(ctx, landlordID, head.HostelID); err != nil {
		return model.Room{}, err
	}
	var out model.Room
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		room, err := s.rooms.LockTx(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if p.Name != nil {
			room.Name = strings.TrimSpace(*p.Name)
		}
		if p.RoomType != nil {
			room.RoomType = *p.RoomType
		}
		if p.Capacity != nil {
			if *p.Capacity < 1 || *p.Capacity < room.Occupied {
				return repository.ErrConflict
			}
			room.Capacity = *p.Capacity
		}
		if p.PriceCents != nil {
			room.PriceCents = *p.PriceCents
		}
		if p.DepositCents != nil {
			room.DepositCents = *p.DepositCents
		}
		if p.Amenities != nil {
			room.Amenities = normalizeAmenities(p.Amenities)
		}
		if err := s.rooms.UpdateDetailsTx(ctx, tx, room); err != nil {
			return err
		}
		room.Normalize()
		out = room
		return nil
	})
	if err != nil {
		return model.Room{}, err
	}
	s.publish(ctx, realtime.TypeUpdate, out)
	return out, nil
}

func (s *ListingService) ownHostel(ctx context.Context, landlordID, hostelID uint64) error {
	h, err := s.hostels.GetByID(ctx, hostelID)
	if err != nil {
		return err
	}
	if h.LandlordID != landlordID {
		return repository.ErrForbidden
	}
	return nil
}

func (s *ListingService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.WithError(err).Warn("invalidate listing cache")
	}
}

func (s *ListingService) publish(ctx context.Context, typ string, room model.Room) {
	s.invalidate(ctx)
	if s.changes == nil {
		return
	}
	ev, err := realtime.RoomEvent(typ, room, time.Now())
	if err == nil {
		err = s.changes.Publish(ctx, ev)
	}
	if err != nil {
		s.log.WithError(err).WithField("room_id", room.ID).Warn("publish room change")
	}
}

func normalizeAmenities(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
