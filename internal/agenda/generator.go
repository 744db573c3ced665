package agenda

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
)

// TemplateSource lists recurring schedule rules. Reads are authoritative:
// the generator does no caching of its own.
type TemplateSource interface {
	ListTemplates(ctx context.Context, f Filters) ([]ScheduleTemplate, error)
}

// ExceptionSource lists exceptional days in a date range. A zero centerID
// means all centers.
type ExceptionSource interface {
	ListExceptions(ctx context.Context, centerID uuid.UUID, from, to time.Time) ([]ExceptionalDay, error)
}

// Occupancy answers whether an active turno already claims a physician or a
// room at a given date and start time.
type Occupancy struct {
	staff map[string]struct{}
	rooms map[string]struct{}
}

func NewOccupancy() *Occupancy {
	return &Occupancy{
		staff: make(map[string]struct{}),
		rooms: make(map[string]struct{}),
	}
}

func occKey(date time.Time, start MinuteOfDay, id uuid.UUID) string {
	return fmt.Sprintf("%s:%d:%s", date.Format("2006-01-02"), start, id)
}

func (o *Occupancy) AddStaff(date time.Time, start MinuteOfDay, staffID uuid.UUID) {
	o.staff[occKey(date, start, staffID)] = struct{}{}
}

func (o *Occupancy) AddRoom(date time.Time, start MinuteOfDay, roomID uuid.UUID) {
	o.rooms[occKey(date, start, roomID)] = struct{}{}
}

func (o *Occupancy) Taken(date time.Time, start MinuteOfDay, staffID, roomID uuid.UUID) bool {
	if o == nil {
		return false
	}
	if _, ok := o.staff[occKey(date, start, staffID)]; ok {
		return true
	}
	_, ok := o.rooms[occKey(date, start, roomID)]
	return ok
}

// OccupancySource loads the active-turno occupancy for a date range.
type OccupancySource interface {
	LoadOccupancy(ctx context.Context, from, to time.Time) (*Occupancy, error)
}

// Generator expands schedule templates into candidate slots.
type Generator struct {
	templates  TemplateSource
	exceptions ExceptionSource
	occupancy  OccupancySource
}

func NewGenerator(templates TemplateSource, exceptions ExceptionSource, occupancy OccupancySource) *Generator {
	return &Generator{
		templates:  templates,
		exceptions: exceptions,
		occupancy:  occupancy,
	}
}

// Generate expands every matching template over [today, today+horizonWeeks)
// into discrete slots. All reads happen up front; the returned sequence is
// pure over the fetched data, so callers may re-range it (paginated
// consumption, retries) without re-querying or holding resources.
func (g *Generator) Generate(ctx context.Context, f Filters, horizonWeeks int, now time.Time) (iter.Seq[Slot], error) {
	if horizonWeeks <= 0 {
		return nil, fmt.Errorf("horizon weeks must be positive, got %d", horizonWeeks)
	}

	templates, err := g.templates.ListTemplates(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	if f.ExcludeStaffID != nil {
		filtered := templates[:0]
		for _, tpl := range templates {
			if tpl.StaffID != *f.ExcludeStaffID {
				filtered = append(filtered, tpl)
			}
		}
		templates = filtered
	}

	from := DateOf(now)
	to := from.AddDate(0, 0, 7*horizonWeeks)

	var centerID uuid.UUID
	if f.CenterID != nil {
		centerID = *f.CenterID
	}
	exceptions, err := g.exceptions.ListExceptions(ctx, centerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	byDate := make(map[string][]ExceptionalDay, len(exceptions))
	for _, ex := range exceptions {
		k := ex.Date.Format("2006-01-02")
		byDate[k] = append(byDate[k], ex)
	}

	occ, err := g.occupancy.LoadOccupancy(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load occupancy: %w", err)
	}

	return func(yield func(Slot) bool) {
		for date := from; date.Before(to); date = date.AddDate(0, 0, 1) {
			dayExceptions := byDate[date.Format("2006-01-02")]
			for _, tpl := range templates {
				if tpl.Weekday != date.Weekday() || tpl.SlotMinutes <= 0 {
					continue
				}
				for _, w := range ResolveDay(tpl, dayExceptions) {
					if !w.Available {
						continue
					}
					step := MinuteOfDay(tpl.SlotMinutes)
					for start := w.Start; start+step <= w.End; start += step {
						at := date.Add(time.Duration(start) * time.Minute)
						if at.Before(now) {
							continue
						}
						s := Slot{
							TemplateID:  tpl.ID,
							StaffID:     tpl.StaffID,
							PhysicianID: tpl.PhysicianID,
							SpecialtyID: tpl.SpecialtyID,
							RoomID:      tpl.RoomID,
							CenterID:    tpl.CenterID,
							Date:        date,
							Start:       start,
							End:         start + step,
							Occupied:    occ.Taken(date, start, tpl.StaffID, tpl.RoomID),
						}
						if !yield(s) {
							return
						}
					}
				}
			}
		}
	}, nil
}
