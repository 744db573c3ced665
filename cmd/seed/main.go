package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinagenda/turnos/internal/agenda"
	"github.com/clinagenda/turnos/internal/db"
)

const (
	centers          = 3
	roomsPerCenter   = 4
	staffPerCenter   = 12
	exceptionalDays  = 6
	specialtiesCount = 6
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	specialtyIDs := make([]uuid.UUID, specialtiesCount)
	for i := range specialtyIDs {
		specialtyIDs[i] = uuid.New()
	}

	seedCtx := context.Background()
	templates, err := seedTemplates(seedCtx, pool, specialtyIDs)
	if err != nil {
		log.Fatalf("seed templates: %v", err)
	}
	if err := seedExceptions(seedCtx, pool, templates); err != nil {
		log.Fatalf("seed exceptions: %v", err)
	}

	log.Println("seed complete")
}

func seedTemplates(ctx context.Context, pool *pgxpool.Pool, specialtyIDs []uuid.UUID) ([]agenda.ScheduleTemplate, error) {
	log.Printf("seeding templates for %d centers", centers)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var templates []agenda.ScheduleTemplate

	slotLengths := []int{15, 20, 30}

	for c := 0; c < centers; c++ {
		centerID := uuid.New()

		roomIDs := make([]uuid.UUID, roomsPerCenter)
		for i := range roomIDs {
			roomIDs[i] = uuid.New()
		}

		for s := 0; s < staffPerCenter; s++ {
			staffID := uuid.New()
			physicianID := uuid.New()
			specialtyID := specialtyIDs[gofakeit.Number(0, len(specialtyIDs)-1)]

			// Each staff member works two or three weekdays.
			days := gofakeit.Number(2, 3)
			used := map[int]bool{}
			for d := 0; d < days; d++ {
				weekday := gofakeit.Number(1, 5) // Monday..Friday
				if used[weekday] {
					continue
				}
				used[weekday] = true

				startHour := gofakeit.Number(8, 13)
				spanHours := gofakeit.Number(3, 5)

				tpl := agenda.ScheduleTemplate{
					ID:          uuid.New(),
					StaffID:     staffID,
					PhysicianID: physicianID,
					SpecialtyID: specialtyID,
					RoomID:      roomIDs[gofakeit.Number(0, len(roomIDs)-1)],
					CenterID:    centerID,
					Weekday:     time.Weekday(weekday),
					Start:       agenda.MinuteOfDay(startHour * 60),
					End:         agenda.MinuteOfDay((startHour + spanHours) * 60),
					SlotMinutes: slotLengths[gofakeit.Number(0, len(slotLengths)-1)],
				}

				_, err := tx.Exec(ctx, `
					INSERT INTO esquemas_turno (id, staff_id, physician_id, specialty_id, room_id, center_id, weekday, hora_inicio, hora_fin, slot_minutes, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
				`, tpl.ID, tpl.StaffID, tpl.PhysicianID, tpl.SpecialtyID, tpl.RoomID, tpl.CenterID,
					int(tpl.Weekday), int(tpl.Start), int(tpl.End), tpl.SlotMinutes)
				if err != nil {
					return nil, err
				}

				templates = append(templates, tpl)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Printf("seeded %d templates", len(templates))
	return templates, nil
}

func seedExceptions(ctx context.Context, pool *pgxpool.Pool, templates []agenda.ScheduleTemplate) error {
	if len(templates) == 0 {
		return nil
	}

	log.Printf("seeding %d exceptional days", exceptionalDays)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	scopes := []agenda.ExceptionScope{
		agenda.ScopeHoliday,
		agenda.ScopeMaintenance,
		agenda.ScopeSpecialAttention,
	}

	for i := 0; i < exceptionalDays; i++ {
		tpl := templates[gofakeit.Number(0, len(templates)-1)]
		scope := scopes[i%len(scopes)]

		// Land the exception on a day the chosen template actually covers.
		date := time.Now().UTC().AddDate(0, 0, gofakeit.Number(1, 21))
		for date.Weekday() != tpl.Weekday {
			date = date.AddDate(0, 0, 1)
		}

		ex := agenda.ExceptionalDay{
			ID:          uuid.New(),
			Date:        date,
			Scope:       scope,
			CenterID:    tpl.CenterID,
			Description: gofakeit.Sentence(6),
		}

		var roomID, templateID *uuid.UUID
		var start, end, duration *int

		switch scope {
		case agenda.ScopeMaintenance:
			roomID = &tpl.RoomID
			s := int(tpl.Start)
			e := s + 60
			start, end = &s, &e
		case agenda.ScopeSpecialAttention:
			templateID = &tpl.ID
			d := 120
			duration = &d
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO configuraciones_excepcionales (id, fecha, scope, center_id, room_id, template_id, hora_inicio, hora_fin, duration_minutes, descripcion, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		`, ex.ID, ex.Date, string(ex.Scope), ex.CenterID, roomID, templateID, start, end, duration, ex.Description)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("exceptional days seeded")
	return nil
}
