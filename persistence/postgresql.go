// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wfunc/puzzleserver/models"
)

// SQLStore 基于 database/sql 的 PostgreSQL 实现
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore 创建 PostgreSQL 数据库连接
func NewSQLStore(host string, port int, user, password, dbname string) (*SQLStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(db); err != nil {
		return nil, err
	}

	return &SQLStore{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS room_records (
            id VARCHAR(64) PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            tier VARCHAR(32),
            capacity INT NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS room_member_records (
            id SERIAL PRIMARY KEY,
            room_id VARCHAR(64) NOT NULL,
            player_id VARCHAR(64) NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (room_id, player_id)
        )`,
		`CREATE TABLE IF NOT EXISTS table_records (
            id VARCHAR(64) PRIMARY KEY,
            room_id VARCHAR(64) NOT NULL,
            number INT NOT NULL,
            access_mode VARCHAR(16) NOT NULL,
            rated BOOLEAN DEFAULT FALSE,
            host_id VARCHAR(64),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (room_id, number)
        )`,
		`CREATE TABLE IF NOT EXISTS seat_assignments (
            id SERIAL PRIMARY KEY,
            table_id VARCHAR(64) NOT NULL,
            seat_number INT NOT NULL,
            player_id VARCHAR(64) NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (table_id, seat_number),
            UNIQUE (player_id)
        )`,
		`CREATE TABLE IF NOT EXISTS invitation_records (
            id VARCHAR(64) PRIMARY KEY,
            room_id VARCHAR(64) NOT NULL,
            table_id VARCHAR(64) NOT NULL,
            inviter_id VARCHAR(64) NOT NULL,
            invitee_id VARCHAR(64) NOT NULL,
            status VARCHAR(16) NOT NULL,
            reason VARCHAR(255),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (table_id, invitee_id)
        )`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
            id SERIAL PRIMARY KEY,
            scope VARCHAR(16) NOT NULL,
            scope_id VARCHAR(64) NOT NULL,
            player_id VARCHAR(64),
            body TEXT NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS notifications (
            id SERIAL PRIMARY KEY,
            player_id VARCHAR(64) NOT NULL,
            kind VARCHAR(32) NOT NULL,
            body TEXT NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS game_records (
            id VARCHAR(64) PRIMARY KEY,
            table_id VARCHAR(64) NOT NULL,
            room_id VARCHAR(64) NOT NULL,
            players TEXT,
            winners TEXT,
            abnormal BOOLEAN DEFAULT FALSE,
            started_at TIMESTAMP,
            ended_at TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_table_records_room_id ON table_records(room_id);
         CREATE INDEX IF NOT EXISTS idx_invitations_invitee ON invitation_records(invitee_id);
         CREATE INDEX IF NOT EXISTS idx_chat_scope ON chat_messages(scope_id);
         CREATE INDEX IF NOT EXISTS idx_notifications_player ON notifications(player_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Transaction 事务支持
func (s *SQLStore) Transaction(fn func(tx Tx) error) error {
	dbTx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(&sqlTx{tx: dbTx}); err != nil {
		dbTx.Rollback()
		return err
	}
	return dbTx.Commit()
}

// Close 关闭数据库连接
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	tx *sql.Tx
}

// mapSQLErr 转换驱动错误，唯一约束冲突码为 23505
func mapSQLErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecordNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (t *sqlTx) SaveRoom(room *models.RoomRecord) error {
	_, err := t.tx.Exec(`
        INSERT INTO room_records (id, name, tier, capacity, updated_at)
        VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
        ON CONFLICT (id) DO UPDATE
        SET name = $2, tier = $3, capacity = $4, updated_at = CURRENT_TIMESTAMP`,
		room.ID, room.Name, room.Tier, room.Capacity)
	return mapSQLErr(err)
}

func (t *sqlTx) GetRoom(id string) (*models.RoomRecord, error) {
	var room models.RoomRecord
	err := t.tx.QueryRow(`
        SELECT id, name, tier, capacity FROM room_records WHERE id = $1`, id).
		Scan(&room.ID, &room.Name, &room.Tier, &room.Capacity)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	return &room, nil
}

func (t *sqlTx) CreateRoomMember(m *models.RoomMemberRecord) error {
	err := t.tx.QueryRow(`
        INSERT INTO room_member_records (room_id, player_id)
        VALUES ($1, $2) RETURNING id`, m.RoomID, m.PlayerID).Scan(&m.ID)
	return mapSQLErr(err)
}

func (t *sqlTx) DeleteRoomMember(roomID, playerID string) error {
	_, err := t.tx.Exec(`
        DELETE FROM room_member_records WHERE room_id = $1 AND player_id = $2`,
		roomID, playerID)
	return mapSQLErr(err)
}

func (t *sqlTx) DeleteRoomMembersForRoom(roomID string) error {
	_, err := t.tx.Exec(`
        DELETE FROM room_member_records WHERE room_id = $1`, roomID)
	return mapSQLErr(err)
}

func (t *sqlTx) CountRoomMembers(roomID string) (int, error) {
	var n int
	err := t.tx.QueryRow(`
        SELECT COUNT(*) FROM room_member_records WHERE room_id = $1`, roomID).Scan(&n)
	return n, mapSQLErr(err)
}

func (t *sqlTx) SaveTable(table *models.TableRecord) error {
	_, err := t.tx.Exec(`
        INSERT INTO table_records (id, room_id, number, access_mode, rated, host_id, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
        ON CONFLICT (id) DO UPDATE
        SET access_mode = $4, rated = $5, host_id = $6, updated_at = CURRENT_TIMESTAMP`,
		table.ID, table.RoomID, table.Number, table.AccessMode, table.Rated, table.HostID)
	return mapSQLErr(err)
}

func (t *sqlTx) GetTable(id string) (*models.TableRecord, error) {
	var table models.TableRecord
	err := t.tx.QueryRow(`
        SELECT id, room_id, number, access_mode, rated, host_id
        FROM table_records WHERE id = $1`, id).
		Scan(&table.ID, &table.RoomID, &table.Number, &table.AccessMode, &table.Rated, &table.HostID)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	return &table, nil
}

func (t *sqlTx) DeleteTable(id string) error {
	_, err := t.tx.Exec(`DELETE FROM table_records WHERE id = $1`, id)
	return mapSQLErr(err)
}

func (t *sqlTx) CreateSeatAssignment(a *models.SeatAssignment) error {
	err := t.tx.QueryRow(`
        INSERT INTO seat_assignments (table_id, seat_number, player_id)
        VALUES ($1, $2, $3) RETURNING id`,
		a.TableID, a.SeatNumber, a.PlayerID).Scan(&a.ID)
	return mapSQLErr(err)
}

func (t *sqlTx) DeleteSeatAssignment(tableID string, seatNumber int) error {
	_, err := t.tx.Exec(`
        DELETE FROM seat_assignments WHERE table_id = $1 AND seat_number = $2`,
		tableID, seatNumber)
	return mapSQLErr(err)
}

func (t *sqlTx) GetSeatAssignment(tableID string, seatNumber int) (*models.SeatAssignment, error) {
	var a models.SeatAssignment
	err := t.tx.QueryRow(`
        SELECT id, table_id, seat_number, player_id FROM seat_assignments
        WHERE table_id = $1 AND seat_number = $2`, tableID, seatNumber).
		Scan(&a.ID, &a.TableID, &a.SeatNumber, &a.PlayerID)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	return &a, nil
}

func (t *sqlTx) GetSeatForPlayer(playerID string) (*models.SeatAssignment, error) {
	var a models.SeatAssignment
	err := t.tx.QueryRow(`
        SELECT id, table_id, seat_number, player_id FROM seat_assignments
        WHERE player_id = $1`, playerID).
		Scan(&a.ID, &a.TableID, &a.SeatNumber, &a.PlayerID)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	return &a, nil
}

func (t *sqlTx) ListSeatAssignments(tableID string) ([]models.SeatAssignment, error) {
	rows, err := t.tx.Query(`
        SELECT id, table_id, seat_number, player_id FROM seat_assignments
        WHERE table_id = $1 ORDER BY seat_number`, tableID)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	defer rows.Close()

	var out []models.SeatAssignment
	for rows.Next() {
		var a models.SeatAssignment
		if err := rows.Scan(&a.ID, &a.TableID, &a.SeatNumber, &a.PlayerID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *sqlTx) CreateInvitation(inv *models.InvitationRecord) error {
	_, err := t.tx.Exec(`
        INSERT INTO invitation_records (id, room_id, table_id, inviter_id, invitee_id, status, reason)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inv.ID, inv.RoomID, inv.TableID, inv.InviterID, inv.InviteeID, inv.Status, inv.Reason)
	return mapSQLErr(err)
}

func (t *sqlTx) GetInvitation(id string) (*models.InvitationRecord, error) {
	var inv models.InvitationRecord
	err := t.tx.QueryRow(`
        SELECT id, room_id, table_id, inviter_id, invitee_id, status, reason
        FROM invitation_records WHERE id = $1`, id).
		Scan(&inv.ID, &inv.RoomID, &inv.TableID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.Reason)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	return &inv, nil
}

func (t *sqlTx) GetInvitationByInvitee(tableID, inviteeID string) (*models.InvitationRecord, error) {
	var inv models.InvitationRecord
	err := t.tx.QueryRow(`
        SELECT id, room_id, table_id, inviter_id, invitee_id, status, reason
        FROM invitation_records WHERE table_id = $1 AND invitee_id = $2`, tableID, inviteeID).
		Scan(&inv.ID, &inv.RoomID, &inv.TableID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.Reason)
	if err != nil {
		return nil, mapSQLErr(err)
	}
	return &inv, nil
}

func (t *sqlTx) UpdateInvitation(inv *models.InvitationRecord) error {
	_, err := t.tx.Exec(`
        UPDATE invitation_records
        SET status = $2, reason = $3, updated_at = CURRENT_TIMESTAMP
        WHERE id = $1`,
		inv.ID, inv.Status, inv.Reason)
	return mapSQLErr(err)
}

func (t *sqlTx) DeleteInvitation(id string) error {
	_, err := t.tx.Exec(`DELETE FROM invitation_records WHERE id = $1`, id)
	return mapSQLErr(err)
}

func (t *sqlTx) DeleteInvitationsForTable(tableID string) error {
	_, err := t.tx.Exec(`DELETE FROM invitation_records WHERE table_id = $1`, tableID)
	return mapSQLErr(err)
}

func (t *sqlTx) AppendChat(msg *models.ChatMessage) error {
	err := t.tx.QueryRow(`
        INSERT INTO chat_messages (scope, scope_id, player_id, body)
        VALUES ($1, $2, $3, $4) RETURNING id`,
		msg.Scope, msg.ScopeID, msg.PlayerID, msg.Body).Scan(&msg.ID)
	return mapSQLErr(err)
}

func (t *sqlTx) AppendNotification(n *models.Notification) error {
	err := t.tx.QueryRow(`
        INSERT INTO notifications (player_id, kind, body)
        VALUES ($1, $2, $3) RETURNING id`,
		n.PlayerID, n.Kind, n.Body).Scan(&n.ID)
	return mapSQLErr(err)
}

func (t *sqlTx) SaveGameRecord(rec *models.GameRecord) error {
	_, err := t.tx.Exec(`
        INSERT INTO game_records (id, table_id, room_id, players, winners, abnormal, started_at, ended_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.TableID, rec.RoomID, rec.Players, rec.Winners, rec.Abnormal, rec.StartedAt, rec.EndedAt)
	return mapSQLErr(err)
}
