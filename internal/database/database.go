package database

import (
	"errors"
	"log"

	"studhub/config"
	"studhub/internal/domain"
	"studhub/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error), // Only log errors, not every SQL query
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Payment{},
		&models.AdminAction{},
		&models.Notification{},
	)
}

// SeedSuperAdmin creates the bootstrap SUPERADMIN account if no staff user exists.
// Credentials come from SEED_ADMIN_EMAIL / SEED_ADMIN_PASSWORD at startup; role
// changes afterwards go through the audited admin operations only.
func SeedSuperAdmin(db *gorm.DB, email, password string) {
	if email == "" || password == "" {
		return
	}
	var existing models.User
	err := db.Where("role IN ?", []string{domain.RoleAdmin, domain.RoleSuperAdmin}).First(&existing).Error
	if err == nil {
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("seed superadmin: %v", err)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("seed superadmin: %v", err)
		return
	}
	u := &models.User{
		Username:      "superadmin",
		Email:         email,
		PasswordHash:  string(hash),
		Role:          domain.RoleSuperAdmin,
		AccountStatus: domain.AccountActive,
	}
	if err := db.Create(u).Error; err != nil {
		log.Printf("seed superadmin: %v", err)
	}
}
