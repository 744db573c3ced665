package agenda

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSources struct {
	templates  []ScheduleTemplate
	exceptions []ExceptionalDay
	occupancy  *Occupancy
}

func (f *fakeSources) ListTemplates(ctx context.Context, flt Filters) ([]ScheduleTemplate, error) {
	return f.templates, nil
}

func (f *fakeSources) ListExceptions(ctx context.Context, centerID uuid.UUID, from, to time.Time) ([]ExceptionalDay, error) {
	return f.exceptions, nil
}

func (f *fakeSources) LoadOccupancy(ctx context.Context, from, to time.Time) (*Occupancy, error) {
	if f.occupancy == nil {
		return NewOccupancy(), nil
	}
	return f.occupancy, nil
}

func collect(t *testing.T, g *Generator, f Filters, weeks int, now time.Time) []Slot {
	t.Helper()
	seq, err := g.Generate(context.Background(), f, weeks, now)
	require.NoError(t, err)
	var out []Slot
	for s := range seq {
		out = append(out, s)
	}
	return out
}

// Wednesday, so the following Monday is inside a one-week horizon.
var testNow = time.Date(2026, 9, 2, 8, 0, 0, 0, time.UTC)

func TestGenerateMondayHalfHour(t *testing.T) {
	tpl := testTemplate()
	tpl.Start = mod("09:00")
	tpl.End = mod("09:30")
	tpl.SlotMinutes = 15

	src := &fakeSources{templates: []ScheduleTemplate{tpl}}
	g := NewGenerator(src, src, src)

	slots := collect(t, g, Filters{}, 1, testNow)

	require.Len(t, slots, 2)
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, slots[0].Date)
	assert.Equal(t, mod("09:00"), slots[0].Start)
	assert.Equal(t, mod("09:15"), slots[0].End)
	assert.Equal(t, mod("09:15"), slots[1].Start)
	assert.False(t, slots[0].Occupied)
}

func TestGenerateHolidayYieldsNothing(t *testing.T) {
	tpl := testTemplate()
	src := &fakeSources{
		templates: []ScheduleTemplate{tpl},
		exceptions: []ExceptionalDay{{
			Date:     time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
			Scope:    ScopeHoliday,
			CenterID: tpl.CenterID,
		}},
	}
	g := NewGenerator(src, src, src)

	slots := collect(t, g, Filters{}, 1, testNow)
	assert.Empty(t, slots)
}

func TestGenerateMaintenanceSuppressesBlockedSlots(t *testing.T) {
	tpl := testTemplate() // Monday 09:00-12:00, 30 min
	src := &fakeSources{
		templates: []ScheduleTemplate{tpl},
		exceptions: []ExceptionalDay{{
			Date:   time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
			Scope:  ScopeMaintenance,
			RoomID: &tpl.RoomID,
			Start:  modPtr("10:00"),
			End:    modPtr("11:00"),
		}},
	}
	g := NewGenerator(src, src, src)

	slots := collect(t, g, Filters{}, 1, testNow)

	require.Len(t, slots, 4)
	for _, s := range slots {
		assert.False(t, s.Start >= mod("10:00") && s.Start < mod("11:00"),
			"slot %s falls inside the maintenance block", s.Start)
	}
}

func TestGenerateMarksOccupiedSlots(t *testing.T) {
	tpl := testTemplate()
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	occ := NewOccupancy()
	occ.AddStaff(monday, mod("09:30"), tpl.StaffID)

	src := &fakeSources{templates: []ScheduleTemplate{tpl}, occupancy: occ}
	g := NewGenerator(src, src, src)

	slots := collect(t, g, Filters{}, 1, testNow)

	require.Len(t, slots, 6)
	for _, s := range slots {
		assert.Equal(t, s.Start == mod("09:30"), s.Occupied)
	}
}

func TestGenerateRoomOccupancyCounts(t *testing.T) {
	tpl := testTemplate()
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	occ := NewOccupancy()
	occ.AddRoom(monday, mod("09:00"), tpl.RoomID)

	src := &fakeSources{templates: []ScheduleTemplate{tpl}, occupancy: occ}
	g := NewGenerator(src, src, src)

	slots := collect(t, g, Filters{}, 1, testNow)
	require.NotEmpty(t, slots)
	assert.True(t, slots[0].Occupied)
}

func TestGenerateSelfExclusion(t *testing.T) {
	mine := testTemplate()
	theirs := testTemplate()
	theirs.Weekday = time.Monday

	src := &fakeSources{templates: []ScheduleTemplate{mine, theirs}}
	g := NewGenerator(src, src, src)

	slots := collect(t, g, Filters{ExcludeStaffID: &mine.StaffID}, 1, testNow)

	require.NotEmpty(t, slots)
	for _, s := range slots {
		assert.NotEqual(t, mine.StaffID, s.StaffID)
	}
}

func TestGenerateSkipsPastSlots(t *testing.T) {
	tpl := testTemplate()
	tpl.Weekday = testNow.Weekday() // today

	src := &fakeSources{templates: []ScheduleTemplate{tpl}}
	g := NewGenerator(src, src, src)

	// 10:30 today: 09:00 .. 10:00 already gone.
	slots := collect(t, g, Filters{}, 1, time.Date(2026, 9, 2, 10, 30, 0, 0, time.UTC))

	for _, s := range slots {
		if s.Date.Equal(DateOf(testNow)) {
			assert.GreaterOrEqual(t, s.Start, mod("10:30"))
		}
	}
}

func TestGenerateSequenceIsRestartable(t *testing.T) {
	tpl := testTemplate()
	src := &fakeSources{templates: []ScheduleTemplate{tpl}}
	g := NewGenerator(src, src, src)

	seq, err := g.Generate(context.Background(), Filters{}, 2, testNow)
	require.NoError(t, err)

	var first, second []Slot
	for s := range seq {
		first = append(first, s)
	}
	for s := range seq {
		second = append(second, s)
	}
	assert.Equal(t, first, second)

	// Early break must not poison later consumption.
	for range seq {
		break
	}
	var third []Slot
	for s := range seq {
		third = append(third, s)
	}
	assert.Equal(t, first, third)
}

func TestGenerateRejectsBadHorizon(t *testing.T) {
	src := &fakeSources{}
	g := NewGenerator(src, src, src)

	_, err := g.Generate(context.Background(), Filters{}, 0, testNow)
	assert.Error(t, err)
}
