package authorization

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	profiledomain "github.com/natidev-sh/natiweb/internal/profile/domain"
	"github.com/natidev-sh/natiweb/internal/profile/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	adminID  = "9a0c8f16-3d0f-4a44-bf0e-0d5dbd3f6f10"
	memberID = "2c7b9b0f-4f7e-4d5b-97a1-3f2f4e9c1b22"
	ghostID  = "5e1d6a2c-0f4e-4b8a-8f1d-7c6b5a4d3e21"
)

func TestAuthorizeAllowsAdmin(t *testing.T) {
	svc := newAuthzService(t)

	if err := svc.Authorize(context.Background(), adminID, profiledomain.RoleAdmin); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestAuthorizeDeniesUserRole(t *testing.T) {
	svc := newAuthzService(t)

	err := svc.Authorize(context.Background(), memberID, profiledomain.RoleAdmin)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAuthorizeDeniesMissingProfile(t *testing.T) {
	svc := newAuthzService(t)

	err := svc.Authorize(context.Background(), ghostID, profiledomain.RoleAdmin)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAuthorizeRejectsInvalidInput(t *testing.T) {
	svc := newAuthzService(t)

	if err := svc.Authorize(context.Background(), "user:10", profiledomain.RoleAdmin); !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected invalid actor, got %v", err)
	}
	if err := svc.Authorize(context.Background(), adminID, "owner"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}
}

func newAuthzService(t *testing.T) *ServiceImpl {
	t.Helper()
	db := setupAuthzTestDB(t)
	insertProfile(t, db, adminID, profiledomain.RoleAdmin)
	insertProfile(t, db, memberID, profiledomain.RoleUser)
	return &ServiceImpl{
		db:       db,
		log:      zap.NewNop(),
		profiles: repository.Provide(),
	}
}

func setupAuthzTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&profiledomain.Profile{}); err != nil {
		t.Fatalf("migrate profiles: %v", err)
	}
	return db
}

func insertProfile(t *testing.T, db *gorm.DB, id string, role string) {
	t.Helper()
	if err := db.Create(&profiledomain.Profile{ID: id, Role: role}).Error; err != nil {
		t.Fatalf("insert profile: %v", err)
	}
}
