// persistence/gorm_postgresql.go
package persistence

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/puzzleserver/models"
)

// GormStore 使用GORM的PostgreSQL实现
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建GORM PostgreSQL数据库连接
func NewGormStore(host string, port int, user, password, dbname string) (*GormStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		// TranslateError maps driver duplicate-key failures onto
		// gorm.ErrDuplicatedKey so seat races surface as ErrDuplicate.
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormStore{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.RoomRecord{},
		&models.RoomMemberRecord{},
		&models.TableRecord{},
		&models.SeatAssignment{},
		&models.InvitationRecord{},
		&models.ChatMessage{},
		&models.Notification{},
		&models.GameRecord{},
	)
}

// Transaction 事务支持
func (s *GormStore) Transaction(fn func(tx Tx) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

// Close 关闭数据库连接
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	db *gorm.DB
}

func mapGormErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func (t *gormTx) SaveRoom(room *models.RoomRecord) error {
	return mapGormErr(t.db.Save(room).Error)
}

func (t *gormTx) GetRoom(id string) (*models.RoomRecord, error) {
	var room models.RoomRecord
	if err := t.db.Where("id = ?", id).First(&room).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &room, nil
}

func (t *gormTx) CreateRoomMember(m *models.RoomMemberRecord) error {
	return mapGormErr(t.db.Create(m).Error)
}

func (t *gormTx) DeleteRoomMember(roomID, playerID string) error {
	return mapGormErr(t.db.
		Where("room_id = ? AND player_id = ?", roomID, playerID).
		Delete(&models.RoomMemberRecord{}).Error)
}

func (t *gormTx) DeleteRoomMembersForRoom(roomID string) error {
	return mapGormErr(t.db.
		Where("room_id = ?", roomID).
		Delete(&models.RoomMemberRecord{}).Error)
}

func (t *gormTx) CountRoomMembers(roomID string) (int, error) {
	var n int64
	err := t.db.Model(&models.RoomMemberRecord{}).
		Where("room_id = ?", roomID).Count(&n).Error
	return int(n), mapGormErr(err)
}

func (t *gormTx) SaveTable(table *models.TableRecord) error {
	return mapGormErr(t.db.Save(table).Error)
}

func (t *gormTx) GetTable(id string) (*models.TableRecord, error) {
	var table models.TableRecord
	if err := t.db.Where("id = ?", id).First(&table).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &table, nil
}

func (t *gormTx) DeleteTable(id string) error {
	return mapGormErr(t.db.Delete(&models.TableRecord{}, "id = ?", id).Error)
}

func (t *gormTx) CreateSeatAssignment(a *models.SeatAssignment) error {
	return mapGormErr(t.db.Create(a).Error)
}

func (t *gormTx) DeleteSeatAssignment(tableID string, seatNumber int) error {
	return mapGormErr(t.db.
		Where("table_id = ? AND seat_number = ?", tableID, seatNumber).
		Delete(&models.SeatAssignment{}).Error)
}

func (t *gormTx) GetSeatAssignment(tableID string, seatNumber int) (*models.SeatAssignment, error) {
	var a models.SeatAssignment
	err := t.db.Where("table_id = ? AND seat_number = ?", tableID, seatNumber).First(&a).Error
	if err != nil {
		return nil, mapGormErr(err)
	}
	return &a, nil
}

func (t *gormTx) GetSeatForPlayer(playerID string) (*models.SeatAssignment, error) {
	var a models.SeatAssignment
	err := t.db.Where("player_id = ?", playerID).First(&a).Error
	if err != nil {
		return nil, mapGormErr(err)
	}
	return &a, nil
}

func (t *gormTx) ListSeatAssignments(tableID string) ([]models.SeatAssignment, error) {
	var out []models.SeatAssignment
	err := t.db.Where("table_id = ?", tableID).Order("seat_number").Find(&out).Error
	return out, mapGormErr(err)
}

func (t *gormTx) CreateInvitation(inv *models.InvitationRecord) error {
	return mapGormErr(t.db.Create(inv).Error)
}

func (t *gormTx) GetInvitation(id string) (*models.InvitationRecord, error) {
	var inv models.InvitationRecord
	if err := t.db.Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &inv, nil
}

func (t *gormTx) GetInvitationByInvitee(tableID, inviteeID string) (*models.InvitationRecord, error) {
	var inv models.InvitationRecord
	err := t.db.Where("table_id = ? AND invitee_id = ?", tableID, inviteeID).First(&inv).Error
	if err != nil {
		return nil, mapGormErr(err)
	}
	return &inv, nil
}

func (t *gormTx) UpdateInvitation(inv *models.InvitationRecord) error {
	return mapGormErr(t.db.Save(inv).Error)
}

func (t *gormTx) DeleteInvitation(id string) error {
	return mapGormErr(t.db.Delete(&models.InvitationRecord{}, "id = ?", id).Error)
}

func (t *gormTx) DeleteInvitationsForTable(tableID string) error {
	return mapGormErr(t.db.
		Where("table_id = ?", tableID).
		Delete(&models.InvitationRecord{}).Error)
}

func (t *gormTx) AppendChat(msg *models.ChatMessage) error {
	return mapGormErr(t.db.Create(msg).Error)
}

func (t *gormTx) AppendNotification(n *models.Notification) error {
	return mapGormErr(t.db.Create(n).Error)
}

func (t *gormTx) SaveGameRecord(rec *models.GameRecord) error {
	return mapGormErr(t.db.Create(rec).Error)
}
