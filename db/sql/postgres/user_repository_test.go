package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	testpg "github.com/adeilh/go-rakh-weather/internal/testutil/postgrescontainer"
	"github.com/adeilh/go-rakh-weather/template"
	"github.com/adeilh/go-rakh-weather/users"
)

const testTimeout = 5 * time.Second

var containerErr error

func TestMain(m *testing.M) {
	containerErr = testpg.Setup()
	if containerErr != nil {
		fmt.Println("postgres integration tests skipped:", containerErr)
	}
	code := m.Run()
	if containerErr == nil {
		_ = testpg.Teardown()
	}
	os.Exit(code)
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background()); !errors.Is(err, ErrMissingDSN) {
		t.Fatalf("expected ErrMissingDSN, got %v", err)
	}
}

func TestWithOptionsKeepsDefaultsForZeroValues(t *testing.T) {
	cfg := defaultOptions()
	WithOptions(Options{DSN: "postgres://x", MaxOpenConns: 0, Migrate: true})(&cfg)
	if cfg.DSN != "postgres://x" || cfg.MaxOpenConns != 10 || cfg.MaxIdleConns != 5 || !cfg.Migrate {
		t.Fatalf("unexpected options: %+v", cfg)
	}
	if cfg.ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("unexpected lifetime: %s", cfg.ConnMaxLifetime)
	}
}

func TestUserRepositoryCRUD(t *testing.T) {
	db := openTestDB(t)
	resetSchema(t, db)
	repo := NewUserRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	user := users.User{
		ID:                uuid.New(),
		UserName:          "ram",
		Email:             "ram@example.com",
		PasswordHash:      []byte("hash"),
		Roles:             []string{users.RoleUser},
		SentimentAnalysis: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	fetched, err := repo.FindByUserName(ctx, "ram")
	if err != nil {
		t.Fatalf("FindByUserName error: %v", err)
	}
	if fetched.ID != user.ID || fetched.Email != user.Email || !fetched.SentimentAnalysis {
		t.Fatalf("unexpected user: %+v", fetched)
	}
	if len(fetched.Roles) != 1 || fetched.Roles[0] != users.RoleUser {
		t.Fatalf("unexpected roles: %v", fetched.Roles)
	}

	fetched.Roles = []string{users.RoleUser, users.RoleAdmin}
	fetched.UpdatedAt = time.Now().UTC()
	if err := repo.Update(ctx, fetched); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	updated, err := repo.FindByUserName(ctx, "ram")
	if err != nil {
		t.Fatalf("FindByUserName after update error: %v", err)
	}
	if !updated.HasRole(users.RoleAdmin) {
		t.Fatalf("expected admin role, got %v", updated.Roles)
	}

	if err := repo.Create(ctx, users.User{ID: uuid.New(), UserName: "shyam", PasswordHash: []byte("h"), CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("Create without email error: %v", err)
	}
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 2 || list[0].UserName != "ram" || list[1].Email != "" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := repo.DeleteByUserName(ctx, "shyam"); err != nil {
		t.Fatalf("DeleteByUserName error: %v", err)
	}
	if err := repo.DeleteByUserName(ctx, "shyam"); !errors.Is(err, users.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound on second delete, got %v", err)
	}
	if _, err := repo.FindByUserName(ctx, "missing"); !errors.Is(err, users.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := repo.Update(ctx, users.User{UserName: "missing"}); !errors.Is(err, users.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound on update, got %v", err)
	}
}

func TestUserRepositoryUniqueViolations(t *testing.T) {
	db := openTestDB(t)
	resetSchema(t, db)
	repo := NewUserRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	now := time.Now().UTC()
	base := users.User{ID: uuid.New(), UserName: "ram", Email: "ram@example.com", PasswordHash: []byte("h"), CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, base); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	dupName := base
	dupName.ID = uuid.New()
	dupName.Email = "other@example.com"
	if err := repo.Create(ctx, dupName); !errors.Is(err, users.ErrUserNameTaken) {
		t.Fatalf("expected ErrUserNameTaken, got %v", err)
	}

	dupEmail := base
	dupEmail.ID = uuid.New()
	dupEmail.UserName = "shyam"
	dupEmail.Email = "RAM@example.com"
	if err := repo.Create(ctx, dupEmail); !errors.Is(err, users.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestTemplateRepositoryLoadAndUpsert(t *testing.T) {
	db := openTestDB(t)
	resetSchema(t, db)
	repo := NewTemplateRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	if err := repo.Upsert(ctx, template.Definition{Name: "weather_api", Body: "http://a/?q={CITY}&k={KEY}"}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if err := repo.Upsert(ctx, template.Definition{Name: "legacy", Body: "http://b/<city>", Placeholders: []string{"<city>"}}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if err := repo.Upsert(ctx, template.Definition{Name: "weather_api", Body: "http://c/?q={CITY}&k={KEY}"}); err != nil {
		t.Fatalf("Upsert replace error: %v", err)
	}

	defs, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Name != "legacy" || len(defs[0].Placeholders) != 1 {
		t.Fatalf("unexpected legacy definition: %+v", defs[0])
	}
	if defs[1].Body != "http://c/?q={CITY}&k={KEY}" || defs[1].Placeholders != nil {
		t.Fatalf("unexpected weather definition: %+v", defs[1])
	}

	registry, err := template.New(defs...)
	if err != nil {
		t.Fatalf("template.New error: %v", err)
	}
	got, err := registry.Render("weather_api", template.Sub("{CITY}", "Paris"), template.Sub("{KEY}", "k"))
	if err != nil || got != "http://c/?q=Paris&k=k" {
		t.Fatalf("Render() = %q, %v", got, err)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if containerErr != nil {
		t.Skip("postgres unavailable:", containerErr)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	db, err := Open(ctx, WithDSN(testpg.DSN()), WithMaxOpenConns(4))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func resetSchema(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS users, templates"); err != nil {
		t.Fatalf("drop tables failed: %v", err)
	}
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	// running twice must be harmless
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("second Migrate error: %v", err)
	}
}
